package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
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

// Result is the transcription outcome for one recording.
type Result struct {
	Text             string  `json:"text"`
	DetectedLanguage string  `json:"detected_language"`
	Confidence       float64 `json:"confidence"`
}

// Client calls the speech-to-text service.
type Client struct {
	cfg    config.Transcription
	http   HTTPDoer
	logger *slog.Logger
}

// NewClient builds a transcription client from configuration.
func NewClient(cfg config.Transcription, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Intended for tests.
func (c *Client) SetHTTPClient(doer HTTPDoer) { c.http = doer }

// Transcribe uploads the audio file and returns the recognized text together
// with the language the service detected.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if c.cfg.URL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "request", "transcription url is not configured", nil)
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "transcribe", "read audio", audioPath, err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, "transcribe", "read audio", "audio file is empty: "+audioPath, nil)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "build request", "create form file", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "build request", "write form file", err)
	}
	if c.cfg.Model != "" {
		if err := writer.WriteField("model", c.cfg.Model); err != nil {
			return nil, services.Wrap(services.ErrTransient, "transcribe", "build request", "write model field", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "build request", "close multipart writer", err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(services.WithRequestID(ctx, requestID), http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "build request", c.cfg.URL, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "request", "transcription service unreachable", err)
	}
	defer resp.Body.Close()

	if err := services.ClassifyStatus("transcribe", resp); err != nil {
		return nil, err
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "decode response", "malformed transcription payload", err)
	}
	if result.Text == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "transcribe", "decode response", "service returned empty transcript", nil)
	}

	c.logger.Debug("transcription completed",
		logging.String(logging.FieldRequestID, requestID),
		logging.String("detected_language", result.DetectedLanguage),
		logging.Float64("confidence", result.Confidence),
		logging.Duration("elapsed", time.Since(started)),
	)
	return &result, nil
}
