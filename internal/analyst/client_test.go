package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vantagegraph/vantage/internal/domain"
)

type recordingLimiter struct {
	keys []string
}

func (r *recordingLimiter) Wait(ctx context.Context, key string) error {
	r.keys = append(r.keys, key)
	return nil
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(completionBody(`{"ok":true}`))); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	c := New(Config{Endpoint: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, limiter)

	out, err := c.Complete(context.Background(), "you are an analyst", "classify this pair")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("content = %q", out)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "analyst" {
		t.Errorf("limiter keys = %v", limiter.keys)
	}
}

func TestCompleteNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "m"}, nil)
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, domain.ErrAnalystUnavailable) {
		t.Fatalf("error = %v, want ErrAnalystUnavailable", err)
	}
}

func TestCompleteEmptyChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"choices":[]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "m"}, nil)
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestCompleteAPIErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(`{"error":{"message":"model overloaded"}}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "m"}, nil)
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, domain.ErrAnalystUnavailable) {
		t.Fatalf("error = %v, want ErrAnalystUnavailable", err)
	}
}
