package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/redact"
)

// Detector produces entity spans for a piece of text. Implementations make
// no guarantee about ordering or uniqueness of the returned spans.
type Detector interface {
	Detect(ctx context.Context, text string) ([]redact.Span, error)
}

// Config contains detection service client configuration
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	LanguageCode string
	MaxTextBytes int
}

// Client calls an external PII detection service over HTTP. The service
// returns spans whose offsets index the exact text that was submitted.
type Client struct {
	config Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a detection service client
func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log,
	}
}

type detectRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

type detectResponse struct {
	Entities []entity `json:"entities"`
}

type entity struct {
	Type        string  `json:"type"`
	BeginOffset int     `json:"begin_offset"`
	EndOffset   int     `json:"end_offset"`
	Score       float64 `json:"score"`
}

// Detect submits text to the detection service and returns the reported
// entity spans. Empty text yields no spans without a network call.
func (c *Client) Detect(ctx context.Context, text string) ([]redact.Span, error) {
	if text == "" {
		return nil, nil
	}
	if c.config.MaxTextBytes > 0 && len(text) > c.config.MaxTextBytes {
		return nil, fmt.Errorf("text exceeds detector limit: %d bytes (max %d)", len(text), c.config.MaxTextBytes)
	}

	body, err := json.Marshal(detectRequest{
		Text:         text,
		LanguageCode: c.config.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-Api-Key", c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("detection service returned %d: %s", resp.StatusCode, payload)
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	spans := make([]redact.Span, 0, len(decoded.Entities))
	for _, e := range decoded.Entities {
		spans = append(spans, redact.Span{
			Kind:  e.Type,
			Begin: e.BeginOffset,
			End:   e.EndOffset,
		})
	}

	c.logger.Debug("Entity detection completed",
		zap.Int("entities", len(spans)),
		zap.Duration("duration", time.Since(start)),
	)

	return spans, nil
}
