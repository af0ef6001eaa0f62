package synthesize

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/config"
	"switchboard/internal/logging"
	"switchboard/internal/services"
)

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request asks the text-to-speech service to render spoken audio.
type Request struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
	Voice          string `json:"voice,omitempty"`
}

// Client calls the text-to-speech service.
type Client struct {
	cfg    config.Synthesis
	http   HTTPDoer
	logger *slog.Logger
}

// NewClient builds a synthesis client from configuration.
func NewClient(cfg config.Synthesis, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "synthesize"),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Intended for tests.
func (c *Client) SetHTTPClient(doer HTTPDoer) { c.http = doer }

// Speak renders the answer text as audio and returns the raw bytes.
func (c *Client) Speak(ctx context.Context, text, targetLanguage string) ([]byte, error) {
	if c.cfg.URL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "request", "synthesis url is not configured", nil)
	}
	if text == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "synthesize", "request", "answer text is empty", nil)
	}

	payload, err := json.Marshal(Request{Text: text, TargetLanguage: targetLanguage, Voice: c.cfg.Voice})
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "synthesize", "build request", "encode request", err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(services.WithRequestID(ctx, requestID), http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "build request", c.cfg.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "request", "synthesis service unreachable", err)
	}
	defer resp.Body.Close()

	if err := services.ClassifyStatus("synthesize", resp); err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "read response", "truncated audio payload", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "synthesize", "read response", "service returned empty audio", nil)
	}

	c.logger.Debug("synthesis completed",
		logging.String(logging.FieldRequestID, requestID),
		logging.Int("audio_bytes", len(audio)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return audio, nil
}
