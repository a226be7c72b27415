package cache

import (
	"time"

	"github.com/docsentry/docsentry/internal/redact"
)

// CachedResult is a finished redaction stored under the source document's
// hash. Only redacted output and counts are cached, never the original
// text.
type CachedResult struct {
	DocumentHash  string           `json:"document_hash"`
	RedactedText  string           `json:"redacted_text"`
	LinesRedacted int              `json:"lines_redacted"`
	SpansApplied  int              `json:"spans_applied"`
	Findings      []redact.Finding `json:"findings"`
	CachedAt      time.Time        `json:"cached_at"`
	TTL           int64            `json:"ttl"`
}

// Stats represents cache performance statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}
