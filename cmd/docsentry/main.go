package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/audit"
	"github.com/docsentry/docsentry/internal/cache"
	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/detect"
	"github.com/docsentry/docsentry/internal/logger"
	"github.com/docsentry/docsentry/internal/ocr"
	"github.com/docsentry/docsentry/internal/pipeline"
	"github.com/docsentry/docsentry/internal/redact"
	"github.com/docsentry/docsentry/internal/secrets"
	"github.com/docsentry/docsentry/internal/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("DocSentry %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting DocSentry",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Watch for config file changes. Reloads only take effect for settings
	// read per request; a port change still needs a restart.
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		log.Info("Configuration reloaded",
			zap.Strings("excluded_kinds", newCfg.Redaction.ExcludedKinds),
			zap.String("overlap_policy", newCfg.Redaction.OverlapPolicy),
		)
	}); err != nil {
		log.Warn("Failed to watch configuration", zap.Error(err))
	}

	// Load external service credentials from the environment
	var creds *secrets.Credentials
	if cfg.OCR.CredentialsFile != "" {
		creds, err = secrets.LoadFile(cfg.OCR.CredentialsFile)
	} else {
		creds, err = secrets.Load()
	}
	if err != nil {
		log.Fatal("Failed to load credentials", zap.Error(err))
	}

	// Create redaction engine
	engine, err := redact.New(redact.Config{
		ExcludedKinds: cfg.Redaction.ExcludedKinds,
		OverlapPolicy: cfg.Redaction.OverlapPolicy,
	}, log.WithComponent("redact").Logger)
	if err != nil {
		log.Fatal("Failed to create redaction engine", zap.Error(err))
	}

	// External service clients
	ocrClient := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCR.BaseURL,
		APIKey:  creds.OCRAPIKey,
		Timeout: cfg.OCR.Timeout,
	}, log.WithComponent("ocr").Logger)

	detectClient := detect.NewClient(detect.Config{
		BaseURL:      cfg.Detector.BaseURL,
		APIKey:       creds.DetectorAPIKey,
		Timeout:      cfg.Detector.Timeout,
		LanguageCode: cfg.Detector.LanguageCode,
		MaxTextBytes: cfg.Detector.MaxTextBytes,
	}, log.WithComponent("detect").Logger)

	// Optional result cache
	var resultCache *cache.ResultCache
	if cfg.Cache.Enabled {
		resultCache, err = cache.NewResultCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to initialize result cache", zap.Error(err))
		}
		defer resultCache.Close()
	}

	// Optional audit store
	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		defer auditStore.Close()
	}

	// Assemble the document pipeline
	pipe := pipeline.New(
		engine,
		ocrClient,
		detectClient,
		resultCache,
		auditStore,
		pipeline.Options{OffsetUnit: cfg.Redaction.OffsetUnit},
		log.WithComponent("pipeline").Logger,
	)

	// Create HTTP server
	srv, err := server.New(cfg, log, engine, pipe, auditStore)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
