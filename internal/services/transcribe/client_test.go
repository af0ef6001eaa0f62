package transcribe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"switchboard/internal/config"
	"switchboard/internal/logging"
	"switchboard/internal/services"
	"switchboard/internal/services/transcribe"
	"switchboard/internal/testsupport"
)

func newClient(t *testing.T, url string) *transcribe.Client {
	t.Helper()
	return transcribe.NewClient(config.Transcription{
		URL:            url,
		APIKey:         "secret",
		Model:          "base",
		TimeoutSeconds: 5,
	}, logging.NewNop())
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart upload: %v", err)
		}
		if r.FormValue("model") != "base" {
			t.Errorf("expected model field, got %q", r.FormValue("model"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"fasal mein keede lag gaye hain","detected_language":"hi","confidence":0.91}`))
	}))
	defer server.Close()

	audioPath := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, audioPath, 512)

	result, err := newClient(t, server.URL).Transcribe(context.Background(), audioPath)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if result.Text == "" || result.DetectedLanguage != "hi" {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.Confidence != 0.91 {
		t.Fatalf("expected confidence 0.91, got %v", result.Confidence)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected request id header")
	}
}

func TestTranscribeServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	audioPath := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, audioPath, 512)

	_, err := newClient(t, server.URL).Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestTranscribeRejectionIsInvalidInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported codec", http.StatusBadRequest)
	}))
	defer server.Close()

	audioPath := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, audioPath, 512)

	_, err := newClient(t, server.URL).Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestTranscribeEmptyAudioIsInvalidInput(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "empty.wav")
	testsupport.WriteFile(t, audioPath, 0)

	_, err := newClient(t, "http://127.0.0.1:0").Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestTranscribeUnreachableServiceIsTransient(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "a.wav")
	testsupport.WriteFile(t, audioPath, 64)

	_, err := newClient(t, "http://127.0.0.1:1/transcribe").Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
