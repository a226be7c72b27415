package redact

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Config contains redaction engine configuration. The exclusion list is
// supplied by the caller so it can vary per deployment; nothing is
// hard-coded in the engine.
type Config struct {
	ExcludedKinds []string
	OverlapPolicy string
}

// Engine applies the two-pass redaction pipeline: the structural line pass
// first, then entity span substitution against the structurally redacted
// text. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	excluded map[string]struct{}
	policy   OverlapPolicy
	logger   *zap.Logger
}

// New creates a redaction engine.
func New(cfg Config, log *zap.Logger) (*Engine, error) {
	policy := OverlapPolicy(cfg.OverlapPolicy)
	switch policy {
	case "":
		policy = OverlapReject
	case OverlapReject, OverlapMerge:
	default:
		return nil, fmt.Errorf("unknown overlap policy: %q", cfg.OverlapPolicy)
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedKinds))
	for _, kind := range cfg.ExcludedKinds {
		excluded[kind] = struct{}{}
	}

	log.Info("Redaction engine initialized",
		zap.Strings("excluded_kinds", cfg.ExcludedKinds),
		zap.String("overlap_policy", string(policy)),
	)

	return &Engine{
		excluded: excluded,
		policy:   policy,
		logger:   log,
	}, nil
}

// ExcludedKinds returns the configured exclusion list.
func (e *Engine) ExcludedKinds() []string {
	kinds := make([]string, 0, len(e.excluded))
	for kind := range e.excluded {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Policy returns the configured overlap policy.
func (e *Engine) Policy() OverlapPolicy { return e.policy }

// Redact runs both passes over text. The spans use rune offsets into the
// original text, as produced by the detector; they are validated against it
// before any output is built, and every validation failure aborts the whole
// call so no partially redacted text can leak downstream.
//
// The structural pass can shorten lines the spans point into. A span whose
// range extends past the end of the structurally redacted text is clamped
// to it: that region was already replaced by the line placeholder, so the
// sensitive content is gone either way. A span entirely past the end is
// dropped for the same reason.
func (e *Engine) Redact(text string, spans []Span) (*Result, error) {
	originalLen := utf8.RuneCountInString(text)

	surviving := FilterSpans(spans, e.excluded)
	if err := ValidateSpans(surviving, originalLen); err != nil {
		return nil, err
	}

	resolved, err := ResolveOverlaps(surviving, e.policy)
	if err != nil {
		return nil, err
	}

	intermediate, linesRedacted := redactLines(text)

	applied := clampToLength(resolved, utf8.RuneCountInString(intermediate))
	redacted := applySpans(intermediate, applied)

	result := &Result{
		Text:          redacted,
		LinesRedacted: linesRedacted,
		SpansApplied:  len(applied),
		Findings:      summarize(applied),
	}

	for _, f := range result.Findings {
		e.logger.Debug("Entity spans redacted",
			zap.String("kind", f.Kind),
			zap.Int("count", f.Count),
		)
	}
	e.logger.Info("Redaction completed",
		zap.Int("lines_redacted", linesRedacted),
		zap.Int("spans_applied", len(applied)),
		zap.Int("spans_dropped", len(spans)-len(applied)),
	)

	return result, nil
}

// clampToLength bounds spans to a text of textLen runes. Spans the
// structural pass consumed entirely are dropped.
func clampToLength(spans []Span, textLen int) []Span {
	clamped := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Begin > textLen {
			continue
		}
		if s.End > textLen {
			if s.Begin == textLen {
				continue
			}
			s.End = textLen
		}
		clamped = append(clamped, s)
	}
	return clamped
}

// summarize aggregates applied spans into per-kind findings.
func summarize(spans []Span) []Finding {
	counts := make(map[string]int)
	for _, s := range spans {
		counts[s.Kind]++
	}

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	findings := make([]Finding, 0, len(kinds))
	for _, kind := range kinds {
		findings = append(findings, Finding{Kind: kind, Count: counts[kind]})
	}
	return findings
}
