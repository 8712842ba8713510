package ddr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded defaults must validate: %v", err)
	}
	if len(cfg.AreaPatterns) == 0 || len(cfg.Correlation) == 0 {
		t.Error("defaults look empty")
	}
}

func TestLoadConfigOverridesSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	override := `
severity:
  keyword_weights:
    leakage: 0.9
  root_cause_weight: 0.2
  medium_cut: 0.4
  high_cut: 0.8
  confidence_threshold: 0.6
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Severity.HighCut != 0.8 {
		t.Errorf("high_cut = %v, want 0.8", cfg.Severity.HighCut)
	}
	// Untouched sections keep their defaults.
	if len(cfg.AreaPatterns) == 0 {
		t.Error("area patterns should fall back to defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config should validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/tuning.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no area patterns", func(c *Config) { c.AreaPatterns = nil }, "area_patterns"},
		{"no finding keywords", func(c *Config) { c.FindingKeywords = nil }, "finding_keywords"},
		{"jaccard out of range", func(c *Config) { c.Dedup.JaccardThreshold = 1.5 }, "jaccard_threshold"},
		{"negative tolerance", func(c *Config) { c.Dedup.MeasurementTolerance = -0.1 }, "measurement_tolerance"},
		{"no rules", func(c *Config) { c.Correlation = nil }, "correlation_rules"},
		{"rule without label", func(c *Config) { c.Correlation[0].Label = " " }, "label"},
		{"empty condition", func(c *Config) {
			c.Correlation[0].Conditions = []RuleCondition{{}}
		}, "conditions"},
		{"min conditions too high", func(c *Config) {
			c.Correlation[0].MinConditions = len(c.Correlation[0].Conditions) + 1
		}, "min_conditions"},
		{"bad measurement op", func(c *Config) {
			c.Severity.MeasurementRules[0].Op = "ge"
		}, "op"},
		{"negative keyword weight", func(c *Config) {
			c.Severity.KeywordWeights["leakage"] = -1
		}, "keyword_weights"},
		{"confidence threshold out of range", func(c *Config) {
			c.Severity.ConfidenceThreshold = 1.2
		}, "confidence_threshold"},
		{"negative retries", func(c *Config) { c.Generation.MaxRetries = -1 }, "max_retries"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation failure")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q should mention %q", err, tc.field)
			}
		})
	}
}
