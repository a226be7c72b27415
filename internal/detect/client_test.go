package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestClientDetect(t *testing.T) {
	t.Run("EmptyText", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "http://unreachable.invalid"}, zap.NewNop())
		spans, err := client.Detect(context.Background(), "")
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(spans) != 0 {
			t.Errorf("Empty text should yield no spans, got %v", spans)
		}
	})

	t.Run("ParsesEntities", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/detect" {
				t.Errorf("Unexpected path: %s", r.URL.Path)
			}
			if got := r.Header.Get("X-Api-Key"); got != "secret" {
				t.Errorf("API key header = %q", got)
			}
			var req detectRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("Failed to decode request: %v", err)
			}
			if req.LanguageCode != "en" {
				t.Errorf("Language code = %q", req.LanguageCode)
			}
			json.NewEncoder(w).Encode(detectResponse{Entities: []entity{
				{Type: "NAME", BeginOffset: 0, EndOffset: 4, Score: 0.99},
				{Type: "EMAIL", BeginOffset: 10, EndOffset: 26, Score: 0.95},
			}})
		}))
		defer server.Close()

		client := NewClient(Config{
			BaseURL:      server.URL,
			APIKey:       "secret",
			Timeout:      5 * time.Second,
			LanguageCode: "en",
		}, zap.NewNop())

		spans, err := client.Detect(context.Background(), "John says jane@example.com")
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
		if len(spans) != 2 {
			t.Fatalf("Spans = %v, want 2", spans)
		}
		if spans[0].Kind != "NAME" || spans[0].Begin != 0 || spans[0].End != 4 {
			t.Errorf("spans[0] = %v", spans[0])
		}
	})

	t.Run("UpstreamError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, zap.NewNop())
		if _, err := client.Detect(context.Background(), "some text"); err == nil {
			t.Error("Upstream 500 should fail detection")
		}
	})

	t.Run("TextTooLarge", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "http://unreachable.invalid", MaxTextBytes: 4}, zap.NewNop())
		if _, err := client.Detect(context.Background(), "12345"); err == nil {
			t.Error("Oversized text should fail before the network call")
		}
	})
}
