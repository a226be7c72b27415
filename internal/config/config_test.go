package config

import "testing"

func TestValidateConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		if err := validateConfig(GetDefaults()); err != nil {
			t.Errorf("Default config should validate: %v", err)
		}
	})

	t.Run("BadPort", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Server.Port = 0
		if err := validateConfig(cfg); err == nil {
			t.Error("Port 0 should fail validation")
		}
	})

	t.Run("BadOverlapPolicy", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Redaction.OverlapPolicy = "clamp"
		if err := validateConfig(cfg); err == nil {
			t.Error("Unknown overlap policy should fail validation")
		}
	})

	t.Run("BadOffsetUnit", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Redaction.OffsetUnit = "codepoints"
		if err := validateConfig(cfg); err == nil {
			t.Error("Unknown offset unit should fail validation")
		}
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.Logging.Level = "verbose"
		if err := validateConfig(cfg); err == nil {
			t.Error("Unknown log level should fail validation")
		}
	})

	t.Run("BadRateLimit", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.RateLimit.RequestsPerMin = -1
		if err := validateConfig(cfg); err == nil {
			t.Error("Negative rate limit should fail validation")
		}
	})
}
