package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/audit"
	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/detect"
	"github.com/docsentry/docsentry/internal/ocr"
	"github.com/docsentry/docsentry/internal/redact"
)

// Pipeline runs the full document flow: extract text, detect entities,
// redact, then record the outcome. The cache and audit store are optional;
// the engine and detector are not.
type Pipeline struct {
	engine     *redact.Engine
	source     ocr.TextSource
	detector   detect.Detector
	cache      *cache.ResultCache
	audit      *audit.Store
	offsetUnit string
	logger     *zap.Logger
}

// Options contains pipeline configuration
type Options struct {
	// OffsetUnit declares the unit of the detector's offsets: "runes"
	// (default) or "bytes". Byte offsets are converted to rune offsets
	// before redaction and rejected if they split a character.
	OffsetUnit string
}

// New creates a pipeline
func New(
	engine *redact.Engine,
	source ocr.TextSource,
	detector detect.Detector,
	resultCache *cache.ResultCache,
	auditStore *audit.Store,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	unit := opts.OffsetUnit
	if unit == "" {
		unit = "runes"
	}
	return &Pipeline{
		engine:     engine,
		source:     source,
		detector:   detector,
		cache:      resultCache,
		audit:      auditStore,
		offsetUnit: unit,
		logger:     logger,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	DocumentHash  string           `json:"document_hash"`
	RedactedText  string           `json:"redacted_text"`
	LinesRedacted int              `json:"lines_redacted"`
	SpansApplied  int              `json:"spans_applied"`
	Findings      []redact.Finding `json:"findings"`
	CacheHit      bool             `json:"cache_hit"`
	ExtractMS     float64          `json:"extract_ms"`
	DetectMS      float64          `json:"detect_ms"`
	RedactMS      float64          `json:"redact_ms"`
}

// ProcessDocument runs the full flow over raw document bytes. A previously
// processed document is served from the cache without touching the OCR or
// detection services.
func (p *Pipeline) ProcessDocument(ctx context.Context, document []byte) (*Result, error) {
	hash := cache.HashDocument(document)

	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, hash); ok {
			return &Result{
				DocumentHash:  hash,
				RedactedText:  cached.RedactedText,
				LinesRedacted: cached.LinesRedacted,
				SpansApplied:  cached.SpansApplied,
				Findings:      cached.Findings,
				CacheHit:      true,
			}, nil
		}
	}

	if p.source == nil {
		return nil, fmt.Errorf("no text source configured")
	}

	extractStart := time.Now()
	text, err := p.source.ExtractText(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}
	extractMS := float64(time.Since(extractStart).Nanoseconds()) / 1e6

	// Nothing recognized is a valid, empty input.
	result, err := p.processText(ctx, text, hash, "document")
	if err != nil {
		return nil, err
	}
	result.ExtractMS = extractMS

	if p.cache != nil {
		cached := &cache.CachedResult{
			DocumentHash:  hash,
			RedactedText:  result.RedactedText,
			LinesRedacted: result.LinesRedacted,
			SpansApplied:  result.SpansApplied,
			Findings:      result.Findings,
		}
		if err := p.cache.Store(ctx, cached); err != nil {
			p.logger.Warn("Failed to cache redaction result", zap.Error(err))
		}
	}

	return result, nil
}

// ProcessText runs detection and redaction over already-extracted text.
func (p *Pipeline) ProcessText(ctx context.Context, text string) (*Result, error) {
	hash := cache.HashDocument([]byte(text))
	return p.processText(ctx, text, hash, "text")
}

func (p *Pipeline) processText(ctx context.Context, text, hash, source string) (*Result, error) {
	detectStart := time.Now()
	spans, err := p.detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("entity detection failed: %w", err)
	}
	detectMS := float64(time.Since(detectStart).Nanoseconds()) / 1e6

	if p.offsetUnit == "bytes" {
		spans, err = redact.SpansFromByteOffsets(text, spans)
		if err != nil {
			return nil, err
		}
	}

	redactStart := time.Now()
	redacted, err := p.engine.Redact(text, spans)
	if err != nil {
		// Fail closed: no partial text leaves the pipeline.
		return nil, err
	}
	redactMS := float64(time.Since(redactStart).Nanoseconds()) / 1e6

	result := &Result{
		DocumentHash:  hash,
		RedactedText:  redacted.Text,
		LinesRedacted: redacted.LinesRedacted,
		SpansApplied:  redacted.SpansApplied,
		Findings:      redacted.Findings,
		DetectMS:      detectMS,
		RedactMS:      redactMS,
	}

	p.recordAudit(ctx, result, len(spans), source)

	return result, nil
}

// recordAudit writes the audit trail row. Audit failures are logged, not
// fatal: the redacted output is already safe to return.
func (p *Pipeline) recordAudit(ctx context.Context, result *Result, totalSpans int, source string) {
	if p.audit == nil {
		return
	}

	kinds := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		kinds = append(kinds, f.Kind)
	}

	event := &audit.Event{
		DocumentHash:  result.DocumentHash,
		Source:        source,
		LinesRedacted: result.LinesRedacted,
		SpansApplied:  result.SpansApplied,
		SpansDropped:  totalSpans - result.SpansApplied,
		Kinds:         audit.KindsList(kinds),
		DetectMS:      result.DetectMS,
		RedactMS:      result.RedactMS,
	}

	if err := p.audit.Insert(ctx, event); err != nil {
		p.logger.Warn("Failed to record audit event", zap.Error(err))
	}
}
