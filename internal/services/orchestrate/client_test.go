package orchestrate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"switchboard/internal/callerid"
	"switchboard/internal/config"
	"switchboard/internal/logging"
	"switchboard/internal/services"
	"switchboard/internal/services/orchestrate"
)

func newClient(url string) *orchestrate.Client {
	return orchestrate.NewClient(config.Orchestrator{
		URL:            url,
		APIKey:         "secret",
		TimeoutSeconds: 5,
	}, logging.NewNop())
}

func sampleRequest() orchestrate.Request {
	return orchestrate.Request{
		TranscriptText: "fasal mein keede lag gaye hain, kya karoon",
		SourceLanguage: "hi",
		CallerContext:  callerid.Context{Phone: "+911234567890", Language: "hi"},
	}
}

func TestAskSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req orchestrate.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.CallerContext.Phone != "+911234567890" {
			t.Errorf("expected caller context, got %#v", req.CallerContext)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer_text":"neem ka tel chhidkein","target_language":"hi"}`))
	}))
	defer server.Close()

	answer, err := newClient(server.URL).Ask(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer.AnswerText == "" || answer.TargetLanguage != "hi" {
		t.Fatalf("unexpected answer: %#v", answer)
	}
}

func TestAskDomainRefusalIsUpstreamDomain(t *testing.T) {
	refusals := []string{
		orchestrate.CodeInsufficientContext,
		orchestrate.CodeNoApplicableDomain,
		orchestrate.CodeUpstreamError,
	}
	for _, code := range refusals {
		code := code
		t.Run(code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": code, "message": "cannot answer"},
				})
			}))
			defer server.Close()

			_, err := newClient(server.URL).Ask(context.Background(), sampleRequest())
			if !errors.Is(err, services.ErrUpstreamDomain) {
				t.Fatalf("expected upstream domain error for %s, got %v", code, err)
			}
			if services.IsRetryable(err) {
				t.Fatal("domain refusal must not be retryable")
			}
		})
	}
}

func TestAskDefaultsTargetLanguageToSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer_text":"use neem oil"}`))
	}))
	defer server.Close()

	answer, err := newClient(server.URL).Ask(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer.TargetLanguage != "hi" {
		t.Fatalf("expected source language fallback, got %q", answer.TargetLanguage)
	}
}

func TestAskServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Ask(context.Background(), sampleRequest())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestAskEmptyTranscriptIsInvalidInput(t *testing.T) {
	req := sampleRequest()
	req.TranscriptText = ""
	_, err := newClient("http://127.0.0.1:0").Ask(context.Background(), req)
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
