package redact

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Placeholder returns the replacement text for an entity of the given kind.
func Placeholder(kind string) string {
	return fmt.Sprintf("[REDACTED %s]", kind)
}

// RedactSpans replaces each surviving span of text with a typed placeholder.
//
// Spans use rune offsets into text. Spans whose kind is in excluded are
// dropped first; if none survive, text is returned unchanged. Invalid spans
// (begin > end, or end beyond the rune length of text) fail the whole call,
// never partial output. Overlaps among surviving spans are resolved per
// policy before anything is substituted.
//
// Substitution processes spans in descending begin order (descending end on
// ties). Replacing a span only changes the text from its begin onward, so
// every span still to be processed keeps valid offsets into the current
// text.
func RedactSpans(text string, spans []Span, excluded map[string]struct{}, policy OverlapPolicy) (string, error) {
	surviving := FilterSpans(spans, excluded)
	if len(surviving) == 0 {
		return text, nil
	}

	textLen := utf8.RuneCountInString(text)
	if err := ValidateSpans(surviving, textLen); err != nil {
		return "", err
	}

	resolved, err := ResolveOverlaps(surviving, policy)
	if err != nil {
		return "", err
	}

	return applySpans(text, resolved), nil
}

// FilterSpans returns the spans whose kind is not in excluded. The input
// slice is never modified.
func FilterSpans(spans []Span, excluded map[string]struct{}) []Span {
	surviving := make([]Span, 0, len(spans))
	for _, s := range spans {
		if _, skip := excluded[s.Kind]; skip {
			continue
		}
		surviving = append(surviving, s)
	}
	return surviving
}

// ValidateSpans checks every span against the rune length of the text the
// offsets were computed over. Any inconsistency is a data-integrity error:
// the caller must not proceed with redaction.
func ValidateSpans(spans []Span, textLen int) error {
	for _, s := range spans {
		if s.Begin < 0 || s.Begin > s.End || s.End > textLen {
			return &InvalidSpanError{Span: s, TextLen: textLen}
		}
	}
	return nil
}

// ResolveOverlaps applies the configured overlap policy to the spans.
//
// Under OverlapReject the first overlapping pair fails the call. Under
// OverlapMerge overlapping (including nested and duplicate) spans collapse
// into one span covering their union, keeping the kind of the span that
// starts first (the widest one on ties). Adjacent spans do not overlap.
// The returned slice is sorted by begin ascending.
func ResolveOverlaps(spans []Span, policy OverlapPolicy) ([]Span, error) {
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Begin != ordered[j].Begin {
			return ordered[i].Begin < ordered[j].Begin
		}
		return ordered[i].End > ordered[j].End
	})

	switch policy {
	case OverlapReject:
		for i := 1; i < len(ordered); i++ {
			if ordered[i].Begin < ordered[i-1].End {
				return nil, &OverlapConflictError{A: ordered[i-1], B: ordered[i]}
			}
		}
		return ordered, nil

	case OverlapMerge:
		merged := ordered[:0:0]
		for _, s := range ordered {
			if n := len(merged); n > 0 && s.Begin < merged[n-1].End {
				if s.End > merged[n-1].End {
					merged[n-1].End = s.End
				}
				continue
			}
			merged = append(merged, s)
		}
		return merged, nil

	default:
		return nil, fmt.Errorf("unknown overlap policy: %q", policy)
	}
}

// applySpans substitutes placeholders for non-overlapping spans, rightmost
// first.
func applySpans(text string, spans []Span) string {
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Begin != ordered[j].Begin {
			return ordered[i].Begin > ordered[j].Begin
		}
		return ordered[i].End > ordered[j].End
	})

	runes := []rune(text)
	for _, s := range ordered {
		placeholder := []rune(Placeholder(s.Kind))
		next := make([]rune, 0, len(runes)-(s.End-s.Begin)+len(placeholder))
		next = append(next, runes[:s.Begin]...)
		next = append(next, placeholder...)
		next = append(next, runes[s.End:]...)
		runes = next
	}
	return string(runes)
}

// SpansFromByteOffsets converts spans carrying byte offsets into rune-offset
// spans over text. An offset inside a multi-byte character means the
// detector and the text disagree about units; that span is rejected rather
// than producing malformed output.
func SpansFromByteOffsets(text string, spans []Span) ([]Span, error) {
	// Byte offset -> rune index, defined only on rune boundaries.
	boundaries := make(map[int]int, len(text)+1)
	runeIndex := 0
	for byteIndex := range text {
		boundaries[byteIndex] = runeIndex
		runeIndex++
	}
	boundaries[len(text)] = runeIndex

	converted := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.Begin < 0 || s.Begin > s.End || s.End > len(text) {
			return nil, &InvalidSpanError{Span: s, TextLen: len(text)}
		}
		begin, ok := boundaries[s.Begin]
		if !ok {
			return nil, &EncodingBoundaryError{Span: s, Offset: s.Begin}
		}
		end, ok := boundaries[s.End]
		if !ok {
			return nil, &EncodingBoundaryError{Span: s, Offset: s.End}
		}
		converted = append(converted, Span{Kind: s.Kind, Begin: begin, End: end})
	}
	return converted, nil
}
