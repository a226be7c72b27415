package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/audit"
	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/redact"
)

// Pipeline handles offline redaction of datasets: files of text records
// with pre-detected entity spans go in, redacted records come out. Every
// record is fail-closed on its own; a bad record is counted and skipped,
// never half-redacted.
type Pipeline struct {
	engine *redact.Engine
	audit  *audit.Store
	config *Config
	logger *zap.Logger
	stats  *ProcessingStats
	mu     sync.RWMutex
}

// NewPipeline creates a new batch pipeline. The audit store may be nil.
func NewPipeline(
	engine *redact.Engine,
	auditStore *audit.Store,
	config *Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		engine: engine,
		audit:  auditStore,
		config: config,
		logger: logger,
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}
}

// ProcessFile processes a dataset file (CSV, Parquet, or JSON lines) and
// writes redacted records to outputPath as JSON lines. In dry-run mode no
// output file is written and no audit rows are recorded.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	p.logger.Info("Starting batch redaction",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Bool("dry_run", p.config.DryRun))

	start := time.Now()
	result := &ProcessingResult{}

	format := DetectFileFormat(inputPath)
	p.logger.Info("Detected file format", zap.String("format", string(format)))

	p.resetStats()

	var out *json.Encoder
	if !p.config.DryRun {
		file, err := os.Create(outputPath)
		if err != nil {
			return result, fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()

		writer := bufio.NewWriter(file)
		defer writer.Flush()
		out = json.NewEncoder(writer)
	}

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, inputPath, out, result)
	case FormatParquet:
		err = p.processParquet(ctx, inputPath, out, result)
	case FormatJSON:
		err = p.processJSON(ctx, inputPath, out, result)
	default:
		return result, fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, fmt.Errorf("%s processing failed: %w", format, err)
	}

	result.Duration = time.Since(start)

	p.logger.Info("Batch redaction completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("lines_redacted", result.LinesRedacted),
		zap.Int64("spans_applied", result.SpansApplied),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("redact_time", result.RedactTime),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

// processCSV processes CSV files with columns text, entities. The entities
// column holds a JSON array of {kind, begin, end} objects.
func (p *Pipeline) processCSV(ctx context.Context, inputPath string, out *json.Encoder, result *ProcessingResult) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2 // text, entities

	// Read header
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	p.logger.Info("CSV header detected", zap.Strings("columns", header))

	return p.processBatches(ctx, func() ([]*Record, error) {
		var batch []*Record

		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}

			if len(row) != 2 {
				p.logger.Warn("Invalid CSV record length", zap.Int("length", len(row)))
				continue
			}

			record := &Record{Text: row[0]}
			if entities := strings.TrimSpace(row[1]); entities != "" {
				if err := json.Unmarshal([]byte(entities), &record.Entities); err != nil {
					p.logger.Warn("Failed to parse entities column", zap.Error(err))
					continue
				}
			}

			if p.validateRecord(record) {
				batch = append(batch, record)
			}
		}

		return batch, nil
	}, out, result)
}

// processParquet processes Parquet files
func (p *Pipeline) processParquet(ctx context.Context, inputPath string, out *json.Encoder, result *ProcessingResult) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, func() ([]*Record, error) {
		var batch []*Record

		for len(batch) < p.config.BatchSize {
			var record Record
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read Parquet record", zap.Error(err))
				continue
			}

			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}

		return batch, nil
	}, out, result)
}

// processJSON processes JSON files (one JSON object per line)
func (p *Pipeline) processJSON(ctx context.Context, inputPath string, out *json.Encoder, result *ProcessingResult) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, func() ([]*Record, error) {
		var batch []*Record

		for len(batch) < p.config.BatchSize {
			var record Record
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read JSON record", zap.Error(err))
				continue
			}

			if p.validateRecord(&record) {
				batch = append(batch, &record)
			}
		}

		return batch, nil
	}, out, result)
}

// processBatches processes data in batches using the provided reader function
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]*Record, error), out *json.Encoder, result *ProcessingResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}

		if len(batch) == 0 {
			break // End of file
		}

		if err := p.processBatch(ctx, batch, out, result); err != nil {
			return err
		}

		// Progress reporting
		if p.config.ProgressReport > 0 && result.TotalRecords%int64(p.config.ProgressReport) == 0 {
			p.reportProgress(result)
		}
	}

	return nil
}

// processBatch redacts a single batch of records and records the audit rows
func (p *Pipeline) processBatch(ctx context.Context, batch []*Record, out *json.Encoder, result *ProcessingResult) error {
	events := make([]*audit.Event, 0, len(batch))

	for _, record := range batch {
		result.TotalRecords++

		redactStart := time.Now()
		redacted, err := p.redactRecord(record)
		result.RedactTime += time.Since(redactStart)

		if err != nil {
			result.ProcessedFailed++
			result.Errors = append(result.Errors, err.Error())
			p.logger.Warn("Record rejected", zap.Error(err))
			continue
		}

		result.ProcessedOK++
		result.LinesRedacted += int64(redacted.LinesRedacted)
		result.SpansApplied += int64(redacted.SpansApplied)

		if out != nil {
			kinds := make([]string, 0, len(redacted.Findings))
			for _, f := range redacted.Findings {
				kinds = append(kinds, f.Kind)
			}
			output := OutputRecord{
				RedactedText:  redacted.Text,
				LinesRedacted: redacted.LinesRedacted,
				SpansApplied:  redacted.SpansApplied,
				Kinds:         audit.KindsList(kinds),
			}
			if err := out.Encode(output); err != nil {
				return fmt.Errorf("failed to write output record: %w", err)
			}

			events = append(events, &audit.Event{
				DocumentHash:  cache.HashDocument([]byte(record.Text)),
				Source:        "batch",
				LinesRedacted: redacted.LinesRedacted,
				SpansApplied:  redacted.SpansApplied,
				SpansDropped:  len(record.Entities) - redacted.SpansApplied,
				Kinds:         output.Kinds,
			})
		}
	}

	if p.audit != nil && len(events) > 0 {
		dbStart := time.Now()
		if _, err := p.audit.BatchInsert(ctx, events); err != nil {
			p.logger.Warn("Failed to record batch audit events", zap.Error(err))
		}
		result.DatabaseTime += time.Since(dbStart)
	}

	p.logger.Debug("Batch processed",
		zap.Int("batch_size", len(batch)),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed))

	return nil
}

// redactRecord runs the engine over one record
func (p *Pipeline) redactRecord(record *Record) (*redact.Result, error) {
	spans := make([]redact.Span, 0, len(record.Entities))
	for _, e := range record.Entities {
		spans = append(spans, redact.Span{Kind: e.Kind, Begin: e.Begin, End: e.End})
	}

	if p.config.OffsetUnit == "bytes" {
		converted, err := redact.SpansFromByteOffsets(record.Text, spans)
		if err != nil {
			return nil, err
		}
		spans = converted
	}

	return p.engine.Redact(record.Text, spans)
}

// validateRecord validates a data record
func (p *Pipeline) validateRecord(record *Record) bool {
	if !p.config.ValidateData {
		return true
	}

	if p.config.MaxTextBytes > 0 && len(record.Text) > p.config.MaxTextBytes {
		p.logger.Debug("Invalid record: text too long", zap.Int("length", len(record.Text)))
		return false
	}

	return true
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	elapsed := time.Since(p.stats.StartTime)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
