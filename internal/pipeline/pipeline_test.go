package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

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

func newTestPipeline(t *testing.T, source *stubSource, detector *stubDetector, opts Options) *Pipeline {
	t.Helper()
	engine, err := redact.New(redact.Config{ExcludedKinds: []string{"IP_ADDRESS"}}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return New(engine, source, detector, nil, nil, opts, zap.NewNop())
}

func TestProcessDocument(t *testing.T) {
	t.Run("FullFlow", func(t *testing.T) {
		source := &stubSource{text: "Name: John\nAccount: ***1234"}
		detector := &stubDetector{spans: []redact.Span{{Kind: "NAME", Begin: 6, End: 10}}}
		p := newTestPipeline(t, source, detector, Options{})

		result, err := p.ProcessDocument(context.Background(), []byte("fake-image"))
		if err != nil {
			t.Fatalf("ProcessDocument failed: %v", err)
		}
		want := "Name: [REDACTED NAME]\n[REDACTED LINE]"
		if result.RedactedText != want {
			t.Errorf("RedactedText = %q, want %q", result.RedactedText, want)
		}
		if result.CacheHit {
			t.Error("CacheHit should be false without a cache")
		}
		if result.DocumentHash == "" {
			t.Error("DocumentHash should be set")
		}
	})

	t.Run("EmptyExtraction", func(t *testing.T) {
		// OCR finding nothing is valid input, not an error.
		source := &stubSource{text: ""}
		detector := &stubDetector{}
		p := newTestPipeline(t, source, detector, Options{})

		result, err := p.ProcessDocument(context.Background(), []byte("blank-image"))
		if err != nil {
			t.Fatalf("ProcessDocument failed: %v", err)
		}
		if result.RedactedText != "" {
			t.Errorf("RedactedText = %q, want empty", result.RedactedText)
		}
	})

	t.Run("ExtractionFailure", func(t *testing.T) {
		source := &stubSource{err: errors.New("ocr down")}
		p := newTestPipeline(t, source, &stubDetector{}, Options{})
		if _, err := p.ProcessDocument(context.Background(), []byte("x")); err == nil {
			t.Error("Extraction failure should fail the pipeline")
		}
	})
}

func TestProcessText(t *testing.T) {
	t.Run("ExcludedKindDropped", func(t *testing.T) {
		detector := &stubDetector{spans: []redact.Span{
			{Kind: "IP_ADDRESS", Begin: 0, End: 8},
			{Kind: "EMAIL", Begin: 9, End: 25},
		}}
		p := newTestPipeline(t, nil, detector, Options{})

		result, err := p.ProcessText(context.Background(), "10.0.0.1 jane@example.com")
		if err != nil {
			t.Fatalf("ProcessText failed: %v", err)
		}
		want := "10.0.0.1 [REDACTED EMAIL]"
		if result.RedactedText != want {
			t.Errorf("RedactedText = %q, want %q", result.RedactedText, want)
		}
		if result.SpansApplied != 1 {
			t.Errorf("SpansApplied = %d, want 1", result.SpansApplied)
		}
	})

	t.Run("ByteOffsets", func(t *testing.T) {
		// "é" is two bytes; byte span [5,8) covers "Bob" in "éx: Bob".
		detector := &stubDetector{spans: []redact.Span{{Kind: "NAME", Begin: 5, End: 8}}}
		p := newTestPipeline(t, nil, detector, Options{OffsetUnit: "bytes"})

		result, err := p.ProcessText(context.Background(), "éx: Bob")
		if err != nil {
			t.Fatalf("ProcessText failed: %v", err)
		}
		if result.RedactedText != "éx: [REDACTED NAME]" {
			t.Errorf("RedactedText = %q", result.RedactedText)
		}
	})

	t.Run("MidRuneByteOffsetFailsClosed", func(t *testing.T) {
		detector := &stubDetector{spans: []redact.Span{{Kind: "NAME", Begin: 1, End: 3}}}
		p := newTestPipeline(t, nil, detector, Options{OffsetUnit: "bytes"})

		if _, err := p.ProcessText(context.Background(), "éab"); !errors.Is(err, redact.ErrEncodingBoundary) {
			t.Errorf("Want ErrEncodingBoundary, got %v", err)
		}
	})

	t.Run("InvalidSpanFailsClosed", func(t *testing.T) {
		detector := &stubDetector{spans: []redact.Span{{Kind: "NAME", Begin: 5, End: 2}}}
		p := newTestPipeline(t, nil, detector, Options{})

		if _, err := p.ProcessText(context.Background(), "abcdef"); !errors.Is(err, redact.ErrInvalidSpan) {
			t.Errorf("Want ErrInvalidSpan, got %v", err)
		}
	})

	t.Run("DetectorFailure", func(t *testing.T) {
		detector := &stubDetector{err: errors.New("detector down")}
		p := newTestPipeline(t, nil, detector, Options{})

		if _, err := p.ProcessText(context.Background(), "some text"); err == nil {
			t.Error("Detector failure should fail the pipeline")
		}
	})
}
