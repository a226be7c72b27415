package audit

import "time"

// Event is one row of the redaction audit trail. It records what was
// redacted, never the text itself: document hash, counts, and timings are
// enough to account for every processed document without re-exposing its
// content.
type Event struct {
	ID            int64     `db:"id" json:"id"`
	DocumentHash  string    `db:"document_hash" json:"document_hash"`
	Source        string    `db:"source" json:"source"` // api, document, or batch
	LinesRedacted int       `db:"lines_redacted" json:"lines_redacted"`
	SpansApplied  int       `db:"spans_applied" json:"spans_applied"`
	SpansDropped  int       `db:"spans_dropped" json:"spans_dropped"`
	Kinds         string    `db:"kinds" json:"kinds"` // comma-separated kind list
	DetectMS      float64   `db:"detect_ms" json:"detect_ms"`
	RedactMS      float64   `db:"redact_ms" json:"redact_ms"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Totals summarizes the audit trail.
type Totals struct {
	TotalEvents   int64 `db:"total_events" json:"total_events"`
	TotalLines    int64 `db:"total_lines" json:"total_lines"`
	TotalSpans    int64 `db:"total_spans" json:"total_spans"`
	BatchEvents   int64 `db:"batch_events" json:"batch_events"`
	RequestEvents int64 `db:"request_events" json:"request_events"`
}

// BatchInsertResult reports the outcome of a batch insert.
type BatchInsertResult struct {
	Inserted int64
	Failed   int64
	Duration time.Duration
}
