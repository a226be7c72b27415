package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/audit"
	"github.com/docsentry/docsentry/internal/batch"
	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/logger"
	"github.com/docsentry/docsentry/internal/redact"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		outputFile = flag.String("output", "", "Output file for redacted records (default: <input>.redacted.json)")
		batchSize  = flag.Int("batch-size", 1000, "Batch size for processing")
		dryRun     = flag.Bool("dry-run", false, "Redact without writing output or audit rows")
		skipAudit  = flag.Bool("skip-audit", false, "Skip recording audit rows")
		clearCache = flag.Bool("clear-cache", false, "Clear the Redis result cache and exit")
		showStats  = flag.Bool("stats", false, "Show audit statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*clearCache && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input dataset.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.parquet --output redacted.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input dataset.json --dry-run\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting DocSentry batch redaction",
		zap.String("version", "0.1.0"),
		zap.String("config", *configPath))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	switch {
	case *clearCache:
		if err := clearResultCache(ctx, cfg, log); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
	case *showStats:
		if err := showAuditStats(ctx, cfg, log); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	default:
		if err := processDataset(ctx, cfg, *inputFile, *outputFile, *batchSize, *dryRun, *skipAudit, log); err != nil {
			log.Fatal("Batch processing failed", zap.Error(err))
		}
	}

	log.Info("Batch run completed successfully")
}

// processDataset redacts the input dataset file
func processDataset(ctx context.Context, cfg *config.Config, inputFile, outputFile string, batchSize int, dryRun, skipAudit bool, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	if outputFile == "" {
		outputFile = strings.TrimSuffix(inputFile, ".json")
		outputFile = strings.TrimSuffix(outputFile, ".csv")
		outputFile = strings.TrimSuffix(outputFile, ".parquet")
		outputFile += ".redacted.json"
	}

	engine, err := redact.New(redact.Config{
		ExcludedKinds: cfg.Redaction.ExcludedKinds,
		OverlapPolicy: cfg.Redaction.OverlapPolicy,
	}, log.WithComponent("redact").Logger)
	if err != nil {
		return fmt.Errorf("failed to create redaction engine: %w", err)
	}

	// Optional audit store
	var auditStore *audit.Store
	if cfg.Audit.Enabled && !skipAudit && !dryRun {
		auditStore, err = audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer auditStore.Close()
	}

	batchConfig := &batch.Config{
		BatchSize:      batchSize,
		ValidateData:   true,
		MaxTextBytes:   cfg.Detector.MaxTextBytes,
		DryRun:         dryRun,
		OffsetUnit:     cfg.Redaction.OffsetUnit,
		ProgressReport: 1000,
	}

	pipeline := batch.NewPipeline(engine, auditStore, batchConfig, log.WithComponent("batch").Logger)

	result, err := pipeline.ProcessFile(ctx, inputFile, outputFile)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	log.Info("Dataset processing completed",
		zap.String("input", inputFile),
		zap.String("output", outputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("lines_redacted", result.LinesRedacted),
		zap.Int64("spans_applied", result.SpansApplied),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("redact_time", result.RedactTime),
		zap.Duration("database_time", result.DatabaseTime),
		zap.Float64("records_per_second", float64(result.TotalRecords)/result.Duration.Seconds()))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}

	return nil
}

// showAuditStats displays audit trail statistics
func showAuditStats(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Audit.Enabled {
		return fmt.Errorf("audit store is not enabled")
	}

	store, err := audit.NewStore(&audit.Config{
		DatabaseURL:     cfg.Audit.DatabaseURL,
		MaxOpenConns:    cfg.Audit.MaxOpenConns,
		MaxIdleConns:    cfg.Audit.MaxIdleConns,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
	}, log.WithComponent("audit").Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}
	defer store.Close()

	totals, err := store.GetTotals(ctx)
	if err != nil {
		return fmt.Errorf("failed to get audit totals: %w", err)
	}

	fmt.Printf("\n=== DocSentry Audit Statistics ===\n")
	fmt.Printf("Total Events:       %d\n", totals.TotalEvents)
	fmt.Printf("Request Events:     %d\n", totals.RequestEvents)
	fmt.Printf("Batch Events:       %d\n", totals.BatchEvents)
	fmt.Printf("Lines Redacted:     %d\n", totals.TotalLines)
	fmt.Printf("Spans Applied:      %d\n", totals.TotalSpans)

	recent, err := store.Recent(ctx, 10)
	if err == nil && len(recent) > 0 {
		fmt.Printf("\n=== Recent Events ===\n")
		for _, e := range recent {
			fmt.Printf("%s  %-8s  lines=%d spans=%d kinds=%s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Source,
				e.LinesRedacted, e.SpansApplied, e.Kinds)
		}
	}

	return nil
}

// clearResultCache clears the Redis result cache
func clearResultCache(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if !cfg.Cache.Enabled {
		return fmt.Errorf("result cache is not enabled")
	}

	resultCache, err := cache.NewResultCache(&cache.Config{
		RedisURL:       cfg.Cache.RedisURL,
		MaxConnections: cfg.Cache.MaxConnections,
		MinIdleConns:   cfg.Cache.MinIdleConns,
		DefaultTTL:     cfg.Cache.DefaultTTL,
		KeyPrefix:      cfg.Cache.KeyPrefix,
	}, log.WithComponent("cache").Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to cache: %w", err)
	}
	defer resultCache.Close()

	if err := resultCache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	log.Info("Result cache cleared")
	return nil
}
