package ddr

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// SeverityEngine scores each finding with a weighted sum over configured
// factors and aggregates a report-level severity. Cut points are validated
// at construction, never at scoring time.
type SeverityEngine struct {
	cfg *Config
}

func NewSeverityEngine(cfg *Config) *SeverityEngine { return &SeverityEngine{cfg: cfg} }

// Score computes the per-finding severity. participates reports whether the
// finding contributes to any root cause; cross-area corroboration raises
// severity.
func (e *SeverityEngine) Score(f Finding, participates bool) SeverityScore {
	var factors []Factor

	lower := strings.ToLower(f.Description)
	for _, kw := range sortedKeys(e.cfg.Severity.KeywordWeights) {
		if strings.Contains(lower, kw) {
			factors = append(factors, Factor{Name: "keyword:" + kw, Weight: e.cfg.Severity.KeywordWeights[kw], Score: 1})
		}
	}
	for _, r := range e.cfg.Severity.MeasurementRules {
		m, ok := f.Measurements[r.Measurement]
		if !ok {
			continue
		}
		cond := MeasurementCondition{Name: r.Measurement, Op: r.Op, Value: r.Value}
		if cond.holds(m.Value) {
			factors = append(factors, Factor{Name: "measurement:" + r.Measurement, Weight: r.Weight, Score: 1})
		}
	}
	if participates {
		factors = append(factors, Factor{Name: "root-cause-participation", Weight: e.cfg.Severity.RootCauseWeight, Score: 1})
	}

	raw := 0.0
	for _, fc := range factors {
		raw += fc.Contribution()
	}
	raw = math.Min(1, raw)
	return SeverityScore{
		FindingID: f.ID,
		Level:     e.level(raw),
		Raw:       round2(raw),
		Factors:   factors,
	}
}

func (e *SeverityEngine) level(raw float64) SeverityLevel {
	switch {
	case raw >= e.cfg.Severity.HighCut:
		return SeverityHigh
	case raw >= e.cfg.Severity.MediumCut:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ScoreAll scores every finding in area order and returns the scores plus
// the aggregate. The root-cause participation set is derived from the
// correlation output.
func (e *SeverityEngine) ScoreAll(areas []Area, causes []RootCause) ([]SeverityScore, OverallSeverity, error) {
	participating := map[string]bool{}
	for _, rc := range causes {
		for _, id := range rc.FindingIDs {
			participating[id] = true
		}
	}

	ids := map[string]bool{}
	var scores []SeverityScore
	for _, a := range areas {
		for _, f := range a.Findings {
			ids[f.ID] = true
			scores = append(scores, e.Score(f, participating[f.ID]))
		}
	}
	for id := range participating {
		if !ids[id] {
			return nil, OverallSeverity{}, fmt.Errorf("%w: severity input references unknown finding %s", ErrInvariant, id)
		}
	}

	return scores, e.Aggregate(scores, causes), nil
}

// Aggregate applies the deterministic roll-up: HIGH when any finding is
// HIGH and a sufficiently confident root cause exists; MEDIUM when any
// finding is MEDIUM or any root cause exists; LOW otherwise. Overall
// severity is never lower than the worst corroborated finding.
func (e *SeverityEngine) Aggregate(scores []SeverityScore, causes []RootCause) OverallSeverity {
	anyHigh, anyMedium := false, false
	maxRaw := 0.0
	for _, s := range scores {
		switch s.Level {
		case SeverityHigh:
			anyHigh = true
		case SeverityMedium:
			anyMedium = true
		}
		if s.Raw > maxRaw {
			maxRaw = s.Raw
		}
	}
	confidentCause := false
	for _, rc := range causes {
		if rc.Confidence >= e.cfg.Severity.ConfidenceThreshold {
			confidentCause = true
			break
		}
	}

	switch {
	case anyHigh && confidentCause:
		return OverallSeverity{Level: SeverityHigh, Raw: maxRaw}
	case anyMedium || anyHigh || len(causes) > 0:
		return OverallSeverity{Level: SeverityMedium, Raw: maxRaw}
	default:
		return OverallSeverity{Level: SeverityLow, Raw: maxRaw}
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Map iteration order would leak into the factor breakdown.
	sort.Strings(keys)
	return keys
}
