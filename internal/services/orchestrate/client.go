package orchestrate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/callerid"
	"switchboard/internal/config"
	"switchboard/internal/logging"
	"switchboard/internal/services"
)

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request asks the orchestrator to answer a caller's transcribed question.
type Request struct {
	TranscriptText string           `json:"transcript_text"`
	SourceLanguage string           `json:"source_language"`
	CallerContext  callerid.Context `json:"caller_context"`
}

// Answer is the orchestrator's response for one question.
type Answer struct {
	AnswerText     string `json:"answer_text"`
	TargetLanguage string `json:"target_language"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Domain refusal codes the orchestrator may return. These are answered with
// the configured fallback response rather than retried.
const (
	CodeInsufficientContext = "insufficient-context"
	CodeNoApplicableDomain  = "no-applicable-domain"
	CodeUpstreamError       = "upstream-error"
)

// Client calls the question-answering orchestrator.
type Client struct {
	cfg    config.Orchestrator
	http   HTTPDoer
	logger *slog.Logger
}

// NewClient builds an orchestrator client from configuration.
func NewClient(cfg config.Orchestrator, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "orchestrate"),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Intended for tests.
func (c *Client) SetHTTPClient(doer HTTPDoer) { c.http = doer }

// Ask submits the transcript and returns the orchestrator's answer. A
// structured refusal (unanswerable question, no matching domain) comes back
// tagged as an upstream domain error so the caller can fall back instead of
// retrying.
func (c *Client) Ask(ctx context.Context, request Request) (*Answer, error) {
	if c.cfg.URL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "dispatch", "request", "orchestrator url is not configured", nil)
	}
	if request.TranscriptText == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "dispatch", "request", "transcript text is empty", nil)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidInput, "dispatch", "build request", "encode request", err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(services.WithRequestID(ctx, requestID), http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "dispatch", "build request", c.cfg.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "dispatch", "request", "orchestrator unreachable", err)
	}
	defer resp.Body.Close()

	// The orchestrator reports domain refusals as 422 with a structured error
	// body. Peel those off before the generic status classification.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		var envelope errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
			return nil, c.domainError(requestID, envelope)
		}
		return nil, services.Wrap(services.ErrInvalidInput, "dispatch", "request", "orchestrator rejected transcript", nil)
	}
	if err := services.ClassifyStatus("dispatch", resp); err != nil {
		return nil, err
	}

	var answer Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, services.Wrap(services.ErrTransient, "dispatch", "decode response", "malformed orchestrator payload", err)
	}
	if answer.AnswerText == "" {
		return nil, services.Wrap(services.ErrTransient, "dispatch", "decode response", "orchestrator returned empty answer", nil)
	}
	if answer.TargetLanguage == "" {
		answer.TargetLanguage = request.SourceLanguage
	}

	c.logger.Debug("orchestrator answered",
		logging.String(logging.FieldRequestID, requestID),
		logging.String("target_language", answer.TargetLanguage),
	)
	return &answer, nil
}

func (c *Client) domainError(requestID string, envelope errorEnvelope) error {
	c.logger.Info("orchestrator refused transcript",
		logging.String(logging.FieldRequestID, requestID),
		logging.String("refusal_code", envelope.Error.Code),
	)
	message := envelope.Error.Code
	if envelope.Error.Message != "" {
		message += ": " + envelope.Error.Message
	}
	switch envelope.Error.Code {
	case CodeInsufficientContext, CodeNoApplicableDomain, CodeUpstreamError:
		return services.Wrap(services.ErrUpstreamDomain, "dispatch", "request", message, nil)
	default:
		return services.Wrap(services.ErrInvalidInput, "dispatch", "request", message, nil)
	}
}
