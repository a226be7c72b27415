package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TextSource extracts text from a document image. An empty result means
// nothing was recognized; it is valid input for redaction, not an error.
type TextSource interface {
	ExtractText(ctx context.Context, document []byte) (string, error)
}

// Config contains text-extraction service client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls an external OCR service over HTTP.
type Client struct {
	config Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates an OCR service client
func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

type extractResponse struct {
	Text string `json:"text"`
}

// ExtractText submits raw document bytes and returns the recognized text.
func (c *Client) ExtractText(ctx context.Context, document []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/extract", bytes.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, payload)
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode extraction response: %w", err)
	}

	c.logger.Debug("Text extraction completed",
		zap.Int("document_bytes", len(document)),
		zap.Int("text_bytes", len(decoded.Text)),
		zap.Duration("duration", time.Since(start)),
	)

	return decoded.Text, nil
}
