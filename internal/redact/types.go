package redact

import (
	"errors"
	"fmt"
)

// Span marks a half-open range [Begin, End) of rune indices over the
// original text, tagged with the entity kind reported by the detector.
type Span struct {
	Kind  string `json:"kind"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// OverlapPolicy controls how overlapping spans are resolved before
// substitution.
type OverlapPolicy string

const (
	// OverlapReject fails the redaction when two surviving spans overlap.
	// Callers must merge spans upstream and retry.
	OverlapReject OverlapPolicy = "reject"
	// OverlapMerge pre-merges overlapping spans into a single span
	// covering their union before substitution.
	OverlapMerge OverlapPolicy = "merge"
)

// Finding summarizes the redactions applied for a single entity kind.
type Finding struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Result contains the output of a full redaction pass.
type Result struct {
	Text          string    `json:"text"`
	LinesRedacted int       `json:"lines_redacted"`
	SpansApplied  int       `json:"spans_applied"`
	Findings      []Finding `json:"findings"`
}

// Sentinel errors for errors.Is checks. The typed errors below unwrap to
// these.
var (
	ErrInvalidSpan      = errors.New("invalid span")
	ErrOverlapConflict  = errors.New("overlapping spans")
	ErrEncodingBoundary = errors.New("offset not on character boundary")
)

// InvalidSpanError reports a span whose offsets are inconsistent or out of
// bounds for the text they were computed against.
type InvalidSpanError struct {
	Span    Span
	TextLen int
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("invalid span %s[%d:%d) for text of length %d",
		e.Span.Kind, e.Span.Begin, e.Span.End, e.TextLen)
}

func (e *InvalidSpanError) Unwrap() error { return ErrInvalidSpan }

// OverlapConflictError reports two surviving spans that overlap under the
// reject policy.
type OverlapConflictError struct {
	A, B Span
}

func (e *OverlapConflictError) Error() string {
	return fmt.Sprintf("overlapping spans %s[%d:%d) and %s[%d:%d)",
		e.A.Kind, e.A.Begin, e.A.End, e.B.Kind, e.B.Begin, e.B.End)
}

func (e *OverlapConflictError) Unwrap() error { return ErrOverlapConflict }

// EncodingBoundaryError reports a byte-indexed span whose offset lands
// inside a multi-byte character.
type EncodingBoundaryError struct {
	Span   Span
	Offset int
}

func (e *EncodingBoundaryError) Error() string {
	return fmt.Sprintf("span %s[%d:%d): byte offset %d is not on a character boundary",
		e.Span.Kind, e.Span.Begin, e.Span.End, e.Offset)
}

func (e *EncodingBoundaryError) Unwrap() error { return ErrEncodingBoundary }
