package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/redact"
)

func newTestPipeline(t *testing.T, cfg *Config) *Pipeline {
	t.Helper()

	engine, err := redact.New(redact.Config{ExcludedKinds: []string{"IP_ADDRESS"}}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if cfg == nil {
		cfg = &Config{BatchSize: 100, ValidateData: true, MaxTextBytes: 10000}
	}
	return NewPipeline(engine, nil, cfg, zap.NewNop())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write input file: %v", err)
	}
	return path
}

func readOutput(t *testing.T, path string) []OutputRecord {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output file: %v", err)
	}
	defer file.Close()

	var records []OutputRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record OutputRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("Failed to parse output line: %v", err)
		}
		records = append(records, record)
	}
	return records
}

func TestProcessFileJSON(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "input.json",
		`{"text":"Name: John\nAccount: ***1234","entities":[{"kind":"NAME","begin":6,"end":10}]}
{"text":"clean text","entities":[]}
`)
	output := filepath.Join(dir, "output.json")

	p := newTestPipeline(t, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", result.TotalRecords)
	}
	if result.ProcessedOK != 2 {
		t.Errorf("ProcessedOK = %d, want 2", result.ProcessedOK)
	}
	if result.LinesRedacted != 1 {
		t.Errorf("LinesRedacted = %d, want 1", result.LinesRedacted)
	}
	if result.SpansApplied != 1 {
		t.Errorf("SpansApplied = %d, want 1", result.SpansApplied)
	}

	records := readOutput(t, output)
	if len(records) != 2 {
		t.Fatalf("Output records = %d, want 2", len(records))
	}
	want := "Name: [REDACTED NAME]\n[REDACTED LINE]"
	if records[0].RedactedText != want {
		t.Errorf("RedactedText = %q, want %q", records[0].RedactedText, want)
	}
	if records[1].RedactedText != "clean text" {
		t.Errorf("RedactedText = %q, want unchanged", records[1].RedactedText)
	}
}

func TestProcessFileCSV(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "input.csv",
		"text,entities\n"+
			"Call Jane,\"[{\"\"kind\"\":\"\"NAME\"\",\"\"begin\"\":5,\"\"end\"\":9}]\"\n")
	output := filepath.Join(dir, "output.json")

	p := newTestPipeline(t, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.ProcessedOK != 1 {
		t.Fatalf("ProcessedOK = %d, want 1: %v", result.ProcessedOK, result.Errors)
	}

	records := readOutput(t, output)
	if records[0].RedactedText != "Call [REDACTED NAME]" {
		t.Errorf("RedactedText = %q", records[0].RedactedText)
	}
}

func TestProcessFileRejectsBadSpans(t *testing.T) {
	// A record with an out-of-bounds span is counted as failed and omitted
	// from the output; the rest of the file still processes.
	dir := t.TempDir()
	input := writeFile(t, dir, "input.json",
		`{"text":"short","entities":[{"kind":"NAME","begin":0,"end":99}]}
{"text":"fine","entities":[]}
`)
	output := filepath.Join(dir, "output.json")

	p := newTestPipeline(t, nil)
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.ProcessedFailed != 1 {
		t.Errorf("ProcessedFailed = %d, want 1", result.ProcessedFailed)
	}
	if result.ProcessedOK != 1 {
		t.Errorf("ProcessedOK = %d, want 1", result.ProcessedOK)
	}

	records := readOutput(t, output)
	if len(records) != 1 {
		t.Fatalf("Output records = %d, want 1", len(records))
	}
	if records[0].RedactedText != "fine" {
		t.Errorf("RedactedText = %q", records[0].RedactedText)
	}
}

func TestProcessFileDryRun(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "input.json",
		`{"text":"Name: John","entities":[{"kind":"NAME","begin":6,"end":10}]}
`)
	output := filepath.Join(dir, "output.json")

	p := newTestPipeline(t, &Config{BatchSize: 100, DryRun: true})
	result, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.ProcessedOK != 1 {
		t.Errorf("ProcessedOK = %d, want 1", result.ProcessedOK)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("Dry run should not create an output file")
	}
}

func TestDetectFileFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     FileFormat
	}{
		{"data.csv", FormatCSV},
		{"data.parquet", FormatParquet},
		{"data.json", FormatJSON},
		{"data.jsonl", FormatJSON},
		{"data", FormatCSV},
	}

	for _, tt := range tests {
		if got := DetectFileFormat(tt.filename); got != tt.want {
			t.Errorf("DetectFileFormat(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}
