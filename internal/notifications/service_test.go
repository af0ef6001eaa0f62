package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"switchboard/internal/notifications"
	"switchboard/internal/testsupport"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	service := notifications.NewService(cfg)
	if err := service.NotifyResponseReady(context.Background(), "call-1", "+911234567890"); err != nil {
		t.Fatalf("noop notifier must never fail: %v", err)
	}
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop notifier must never fail: %v", err)
	}
}

func TestNotifyResponseReadySendsNtfyRequest(t *testing.T) {
	var gotTitle, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	if err := service.NotifyResponseReady(context.Background(), "call-1", "+911234567890"); err != nil {
		t.Fatalf("NotifyResponseReady failed: %v", err)
	}
	if !strings.Contains(gotTitle, "Response Ready") {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if !strings.Contains(gotBody, "call-1") || !strings.Contains(gotBody, "+911234567890") {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestDisabledCategorySkipsSend(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = false

	service := notifications.NewService(cfg)
	if err := service.NotifyRecordingFailed(context.Background(), "call-1", "transcribe", "boom"); err != nil {
		t.Fatalf("disabled notification must not fail: %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected no requests for disabled category, got %d", requests)
	}
}

func TestNotifyErrorSurfacesServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	if err := service.NotifyRecordingFailed(context.Background(), "call-1", "transcribe", "boom"); err == nil {
		t.Fatal("expected error for rejected notification")
	}
}
