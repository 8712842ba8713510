package ddr

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// AreaPattern maps a lowercase keyword pattern found in headings or row
// labels to a canonical area name.
type AreaPattern struct {
	Pattern   string `yaml:"pattern" json:"pattern"`
	Canonical string `yaml:"canonical" json:"canonical"`
}

type DedupConfig struct {
	// JaccardThreshold is the token-overlap threshold for the rule-based
	// pass, within a single area.
	JaccardThreshold float64 `yaml:"jaccard_threshold" json:"jaccard_threshold"`
	// MeasurementTolerance merges findings across areas when they share a
	// measurement name and the values agree within this relative tolerance.
	MeasurementTolerance float64 `yaml:"measurement_tolerance" json:"measurement_tolerance"`
	// SemanticThreshold is the cosine-similarity threshold for the optional
	// embedding pass.
	SemanticThreshold float64 `yaml:"semantic_threshold" json:"semantic_threshold"`
	// FillerWords are stripped before lexical comparison.
	FillerWords []string `yaml:"filler_words" json:"filler_words"`
	// PreferTableProvenance breaks canonical-selection ties in favor of
	// table-derived findings before falling back to the ID tie-break.
	PreferTableProvenance bool `yaml:"prefer_table_provenance" json:"prefer_table_provenance"`
}

// MeasurementCondition compares a named measurement against a bound.
// Op is "gt" or "lt".
type MeasurementCondition struct {
	Name  string  `yaml:"name" json:"name"`
	Op    string  `yaml:"op" json:"op"`
	Value float64 `yaml:"value" json:"value"`
}

// RuleCondition is one clause of a correlation rule. A finding satisfies the
// clause when its description contains every keyword, its area matches one
// of Areas (when set), and its measurements satisfy Measurement (when set).
type RuleCondition struct {
	Keywords    []string              `yaml:"keywords" json:"keywords"`
	Areas       []string              `yaml:"areas,omitempty" json:"areas,omitempty"`
	Measurement *MeasurementCondition `yaml:"measurement,omitempty" json:"measurement,omitempty"`
}

// CorrelationRule fires when at least MinConditions of its clauses are each
// satisfied by at least one finding. Rules are evaluated in declaration
// order and independently; a finding may contribute to several rules.
type CorrelationRule struct {
	Label         string          `yaml:"label" json:"label"`
	Rationale     string          `yaml:"rationale" json:"rationale"`
	Conditions    []RuleCondition `yaml:"conditions" json:"conditions"`
	MinConditions int             `yaml:"min_conditions,omitempty" json:"min_conditions,omitempty"`
}

// MeasurementSeverityRule adds Weight to a finding's severity score when the
// named measurement breaches the bound.
type MeasurementSeverityRule struct {
	Measurement string  `yaml:"measurement" json:"measurement"`
	Op          string  `yaml:"op" json:"op"`
	Value       float64 `yaml:"value" json:"value"`
	Weight      float64 `yaml:"weight" json:"weight"`
}

type SeverityConfig struct {
	KeywordWeights   map[string]float64        `yaml:"keyword_weights" json:"keyword_weights"`
	MeasurementRules []MeasurementSeverityRule `yaml:"measurement_rules" json:"measurement_rules"`
	// RootCauseWeight is added when the finding participates in any
	// RootCause; cross-area corroboration raises severity.
	RootCauseWeight float64 `yaml:"root_cause_weight" json:"root_cause_weight"`
	// Cut points map the raw weighted sum to levels. Must satisfy
	// 0 < MediumCut < HighCut.
	MediumCut float64 `yaml:"medium_cut" json:"medium_cut"`
	HighCut   float64 `yaml:"high_cut" json:"high_cut"`
	// ConfidenceThreshold gates the overall-severity escalation rule.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

type GenerationConfig struct {
	// MaxRetries is the number of stricter regeneration attempts after a
	// fact-check failure, before the conservative fallback template.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// FlaggedTerms may not appear in generated text unless present in the
	// supplied facts.
	FlaggedTerms []string `yaml:"flagged_terms" json:"flagged_terms"`
	MaxTokens    int      `yaml:"max_tokens" json:"max_tokens"`
}

// Config is the single configuration surface consumed at pipeline
// construction. Read-only after construction; safe to share across
// concurrent runs.
type Config struct {
	AreaPatterns    []AreaPattern     `yaml:"area_patterns" json:"area_patterns"`
	FindingKeywords []string          `yaml:"finding_keywords" json:"finding_keywords"`
	Dedup           DedupConfig       `yaml:"dedup" json:"dedup"`
	Correlation     []CorrelationRule `yaml:"correlation_rules" json:"correlation_rules"`
	Severity        SeverityConfig    `yaml:"severity" json:"severity"`
	Generation      GenerationConfig  `yaml:"generation" json:"generation"`
}

// DefaultConfig returns the embedded default rule set.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// The embedded defaults ship with the binary; failing to parse them
		// is a build defect.
		panic(fmt.Sprintf("ddr: embedded defaults.yaml: %v", err))
	}
	return cfg
}

// LoadConfig reads a YAML config file. Fields left empty fall back to the
// embedded defaults section-by-section.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate fails fast on configuration that would otherwise surface as
// silent misbehavior at scoring or correlation time.
func (c Config) Validate() error {
	if len(c.AreaPatterns) == 0 {
		return &ConfigError{Field: "area_patterns", Msg: "must not be empty"}
	}
	for i, p := range c.AreaPatterns {
		if strings.TrimSpace(p.Pattern) == "" || strings.TrimSpace(p.Canonical) == "" {
			return &ConfigError{Field: fmt.Sprintf("area_patterns[%d]", i), Msg: "pattern and canonical are required"}
		}
	}
	if len(c.FindingKeywords) == 0 {
		return &ConfigError{Field: "finding_keywords", Msg: "must not be empty"}
	}
	if c.Dedup.JaccardThreshold <= 0 || c.Dedup.JaccardThreshold > 1 {
		return &ConfigError{Field: "dedup.jaccard_threshold", Msg: "must be in (0,1]"}
	}
	if c.Dedup.SemanticThreshold <= 0 || c.Dedup.SemanticThreshold > 1 {
		return &ConfigError{Field: "dedup.semantic_threshold", Msg: "must be in (0,1]"}
	}
	if c.Dedup.MeasurementTolerance < 0 {
		return &ConfigError{Field: "dedup.measurement_tolerance", Msg: "must not be negative"}
	}
	if len(c.Correlation) == 0 {
		return &ConfigError{Field: "correlation_rules", Msg: "must not be empty"}
	}
	for i, r := range c.Correlation {
		if strings.TrimSpace(r.Label) == "" {
			return &ConfigError{Field: fmt.Sprintf("correlation_rules[%d].label", i), Msg: "required"}
		}
		if len(r.Conditions) == 0 {
			return &ConfigError{Field: fmt.Sprintf("correlation_rules[%d].conditions", i), Msg: "must not be empty"}
		}
		if r.MinConditions > len(r.Conditions) {
			return &ConfigError{Field: fmt.Sprintf("correlation_rules[%d].min_conditions", i), Msg: "exceeds condition count"}
		}
		for j, cond := range r.Conditions {
			if len(cond.Keywords) == 0 && len(cond.Areas) == 0 && cond.Measurement == nil {
				return &ConfigError{Field: fmt.Sprintf("correlation_rules[%d].conditions[%d]", i, j), Msg: "empty condition"}
			}
			if cond.Measurement != nil {
				if err := validateOp(cond.Measurement.Op); err != nil {
					return &ConfigError{Field: fmt.Sprintf("correlation_rules[%d].conditions[%d].measurement.op", i, j), Msg: err.Error()}
				}
			}
		}
	}
	if len(c.Severity.KeywordWeights) == 0 {
		return &ConfigError{Field: "severity.keyword_weights", Msg: "must not be empty"}
	}
	for kw, w := range c.Severity.KeywordWeights {
		if w < 0 {
			return &ConfigError{Field: "severity.keyword_weights." + kw, Msg: "must not be negative"}
		}
	}
	for i, r := range c.Severity.MeasurementRules {
		if err := validateOp(r.Op); err != nil {
			return &ConfigError{Field: fmt.Sprintf("severity.measurement_rules[%d].op", i), Msg: err.Error()}
		}
		if r.Weight < 0 {
			return &ConfigError{Field: fmt.Sprintf("severity.measurement_rules[%d].weight", i), Msg: "must not be negative"}
		}
	}
	if !(c.Severity.MediumCut > 0 && c.Severity.MediumCut < c.Severity.HighCut) {
		return &ConfigError{Field: "severity.cut_points", Msg: fmt.Sprintf("must be monotonic: 0 < medium (%.2f) < high (%.2f)", c.Severity.MediumCut, c.Severity.HighCut)}
	}
	if c.Severity.ConfidenceThreshold < 0 || c.Severity.ConfidenceThreshold > 1 {
		return &ConfigError{Field: "severity.confidence_threshold", Msg: "must be in [0,1]"}
	}
	if c.Generation.MaxRetries < 0 {
		return &ConfigError{Field: "generation.max_retries", Msg: "must not be negative"}
	}
	return nil
}

func validateOp(op string) error {
	switch op {
	case "gt", "lt":
		return nil
	default:
		return fmt.Errorf("unknown op %q (want gt or lt)", op)
	}
}

func (m MeasurementCondition) holds(v float64) bool {
	if m.Op == "lt" {
		return v < m.Value
	}
	return v > m.Value
}
