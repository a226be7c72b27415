package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/logger"
	"github.com/docsentry/docsentry/internal/pipeline"
	"github.com/docsentry/docsentry/internal/redact"
)

type stubSource struct {
	text string
	err  error
}

func (s *stubSource) ExtractText(ctx context.Context, document []byte) (string, error) {
	return s.text, s.err
}

type stubDetector struct {
	spans []redact.Span
	err   error
}

func (d *stubDetector) Detect(ctx context.Context, text string) ([]redact.Span, error) {
	return d.spans, d.err
}

func newTestServer(t *testing.T, source *stubSource, detector *stubDetector) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	log := &logger.Logger{Logger: zap.NewNop()}

	engine, err := redact.New(redact.Config{
		ExcludedKinds: cfg.Redaction.ExcludedKinds,
		OverlapPolicy: cfg.Redaction.OverlapPolicy,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	pipe := pipeline.New(engine, source, detector, nil, nil, pipeline.Options{}, zap.NewNop())

	srv, err := New(cfg, log, engine, pipe, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, srv *Server, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRedact(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		rec := postJSON(t, srv, "/v1/redact", redactRequest{
			Text:     "Hello John Doe",
			Entities: []entitySpan{{Kind: "NAME", Begin: 6, End: 14}},
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp redactResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.RedactedText != "Hello [REDACTED NAME]" {
			t.Errorf("RedactedText = %q", resp.RedactedText)
		}
		if resp.SpansApplied != 1 {
			t.Errorf("SpansApplied = %d, want 1", resp.SpansApplied)
		}
		if resp.RequestID == "" {
			t.Error("RequestID should be set")
		}
	})

	t.Run("ExcludedKindFiltered", func(t *testing.T) {
		// IP_ADDRESS is excluded by default configuration.
		srv := newTestServer(t, nil, nil)

		rec := postJSON(t, srv, "/v1/redact", redactRequest{
			Text:     "host 10.0.0.1 down",
			Entities: []entitySpan{{Kind: "IP_ADDRESS", Begin: 5, End: 13}},
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}

		var resp redactResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.RedactedText != "host 10.0.0.1 down" {
			t.Errorf("RedactedText = %q, excluded kind should pass through", resp.RedactedText)
		}
	})

	t.Run("ExcludedKindsOverride", func(t *testing.T) {
		// An explicit empty exclusion list overrides the configured one.
		srv := newTestServer(t, nil, nil)

		rec := postJSON(t, srv, "/v1/redact", redactRequest{
			Text:          "host 10.0.0.1 down",
			Entities:      []entitySpan{{Kind: "IP_ADDRESS", Begin: 5, End: 13}},
			ExcludedKinds: []string{},
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200", rec.Code)
		}

		var resp redactResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.RedactedText != "host [REDACTED IP_ADDRESS] down" {
			t.Errorf("RedactedText = %q", resp.RedactedText)
		}
	})

	t.Run("InvalidSpanRejected", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		rec := postJSON(t, srv, "/v1/redact", redactRequest{
			Text:     "abc",
			Entities: []entitySpan{{Kind: "NAME", Begin: 2, End: 1}},
		})

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("Status = %d, want 422", rec.Code)
		}

		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Code != "invalid_span" {
			t.Errorf("Code = %q, want invalid_span", resp.Code)
		}
	})

	t.Run("OverlapRejected", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		rec := postJSON(t, srv, "/v1/redact", redactRequest{
			Text: "abcdefgh",
			Entities: []entitySpan{
				{Kind: "NAME", Begin: 0, End: 4},
				{Kind: "EMAIL", Begin: 2, End: 6},
			},
		})

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("Status = %d, want 422", rec.Code)
		}

		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Code != "overlap_conflict" {
			t.Errorf("Code = %q, want overlap_conflict", resp.Code)
		}
	})

	t.Run("InvalidBody", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/redact", strings.NewReader("not json"))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleDocument(t *testing.T) {
	t.Run("FullPipeline", func(t *testing.T) {
		source := &stubSource{text: "Name: John\nAccount: ***1234"}
		detector := &stubDetector{spans: []redact.Span{{Kind: "NAME", Begin: 6, End: 10}}}
		srv := newTestServer(t, source, detector)

		req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte("fake-image")))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp documentResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		want := "Name: [REDACTED NAME]\n[REDACTED LINE]"
		if resp.RedactedText != want {
			t.Errorf("RedactedText = %q, want %q", resp.RedactedText, want)
		}
		if resp.DocumentHash == "" {
			t.Error("DocumentHash should be set")
		}
	})

	t.Run("EmptyDocument", func(t *testing.T) {
		srv := newTestServer(t, &stubSource{}, &stubDetector{})

		req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(nil))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("InvalidDetectorSpanRejected", func(t *testing.T) {
		source := &stubSource{text: "short"}
		detector := &stubDetector{spans: []redact.Span{{Kind: "NAME", Begin: 0, End: 99}}}
		srv := newTestServer(t, source, detector)

		req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader([]byte("doc")))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("Status = %d, want 422", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMin = 60
	cfg.RateLimit.Burst = 2
	log := &logger.Logger{Logger: zap.NewNop()}

	engine, err := redact.New(redact.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	pipe := pipeline.New(engine, nil, &stubDetector{}, nil, nil, pipeline.Options{}, zap.NewNop())

	srv, err := New(cfg, log, engine, pipe, nil)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := postJSON(t, srv, "/v1/redact", redactRequest{Text: "hello"})
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("First two requests should pass burst, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("Third request should be limited, got %d", statuses[2])
	}
}
