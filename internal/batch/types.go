package batch

import (
	"time"
)

// EntitySpan mirrors one detected entity in an input record. Offsets use
// the same unit the online API uses, configured per run.
type EntitySpan struct {
	Kind  string `parquet:"kind" json:"kind"`
	Begin int    `parquet:"begin" json:"begin"`
	End   int    `parquet:"end" json:"end"`
}

// Record represents a single record from the input dataset: a piece of
// text plus the entity spans a detector already produced for it.
type Record struct {
	Text     string       `parquet:"text" json:"text"`
	Entities []EntitySpan `parquet:"entities" json:"entities"`
}

// OutputRecord is one line of the redacted output file. The original text
// is not echoed back.
type OutputRecord struct {
	RedactedText  string `json:"redacted_text"`
	LinesRedacted int    `json:"lines_redacted"`
	SpansApplied  int    `json:"spans_applied"`
	Kinds         string `json:"kinds,omitempty"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	LinesRedacted   int64         `json:"lines_redacted"`
	SpansApplied    int64         `json:"spans_applied"`
	Duration        time.Duration `json:"duration"`
	RedactTime      time.Duration `json:"redact_time"`
	DatabaseTime    time.Duration `json:"database_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	ValidateData   bool   `yaml:"validate_data" mapstructure:"validate_data"`     // true
	MaxTextBytes   int    `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`   // 100000
	DryRun         bool   `yaml:"dry_run" mapstructure:"dry_run"`                 // false
	OffsetUnit     string `yaml:"offset_unit" mapstructure:"offset_unit"`         // runes
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"` // 1000
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsValid   int64     `json:"records_valid"`
	RecordsInvalid int64     `json:"records_invalid"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case len(filename) >= 4 && filename[len(filename)-4:] == ".csv":
		return FormatCSV
	case len(filename) >= 8 && filename[len(filename)-8:] == ".parquet":
		return FormatParquet
	case len(filename) >= 5 && filename[len(filename)-5:] == ".json":
		return FormatJSON
	case len(filename) >= 6 && filename[len(filename)-6:] == ".jsonl":
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}
