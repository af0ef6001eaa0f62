package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"switchboard/internal/config"
)

const userAgent = "Switchboard-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyResponseReady(ctx context.Context, identity, callerPhone string) error
	NotifyReviewNeeded(ctx context.Context, identity, reason string) error
	NotifyRecordingFailed(ctx context.Context, identity, stage, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		send: toggles{
			responses: cfg.Notifications.Responses,
			review:    cfg.Notifications.Review,
			errors:    cfg.Notifications.Errors,
		},
	}
}

type toggles struct {
	responses bool
	review    bool
	errors    bool
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	send     toggles
}

func (n *ntfyService) NotifyResponseReady(ctx context.Context, identity, callerPhone string) error {
	if !n.send.responses {
		return nil
	}
	data := payload{
		title:   "Switchboard - Response Ready",
		message: fmt.Sprintf("Response ready for %s (caller %s)", identity, callerPhone),
		tags:    []string{"switchboard", "response", "ready"},
	}
	return n.push(ctx, data)
}

func (n *ntfyService) NotifyReviewNeeded(ctx context.Context, identity, reason string) error {
	if !n.send.review {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}
	data := payload{
		title:   "Switchboard - Review Needed",
		message: fmt.Sprintf("Fallback answer used for %s\nReason: %s", identity, reason),
		tags:    []string{"switchboard", "review"},
	}
	return n.push(ctx, data)
}

func (n *ntfyService) NotifyRecordingFailed(ctx context.Context, identity, stage, message string) error {
	if !n.send.errors {
		return nil
	}
	data := payload{
		title:    "Switchboard - Recording Failed",
		message:  fmt.Sprintf("%s failed during %s: %s", identity, stage, strings.TrimSpace(message)),
		tags:     []string{"switchboard", "error", "alert"},
		priority: "high",
	}
	return n.push(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Switchboard - Test",
		message:  "Notification system test",
		tags:     []string{"switchboard", "test"},
		priority: "low",
	}
	return n.push(ctx, data)
}

func (n *ntfyService) push(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyResponseReady(context.Context, string, string) error { return nil }
func (noopService) NotifyReviewNeeded(context.Context, string, string) error  { return nil }
func (noopService) NotifyRecordingFailed(context.Context, string, string, string) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
