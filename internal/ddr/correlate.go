package ddr

import (
	"fmt"
	"sort"
	"strings"
)

// Correlator links findings across areas into root-cause groups by applying
// the configured rule set in declaration order. Attribution is many-to-many:
// a finding may contribute to several root causes.
type Correlator struct {
	cfg *Config
}

func NewCorrelator(cfg *Config) *Correlator { return &Correlator{cfg: cfg} }

// Correlate evaluates every rule independently against the deduplicated
// areas. Output is sorted by descending confidence, then label, so repeated
// runs over identical input produce byte-identical ordering.
func (c *Correlator) Correlate(areas []Area) ([]RootCause, error) {
	findings := flatten(areas)
	var causes []RootCause
	for _, rule := range c.cfg.Correlation {
		rc, ok := evalRule(rule, findings)
		if !ok {
			continue
		}
		causes = append(causes, rc)
	}

	ids := map[string]bool{}
	for _, f := range findings {
		ids[f.ID] = true
	}
	for _, rc := range causes {
		for _, id := range rc.FindingIDs {
			if !ids[id] {
				return nil, fmt.Errorf("%w: root cause %q references unknown finding %s", ErrInvariant, rc.Label, id)
			}
		}
	}

	sort.SliceStable(causes, func(i, j int) bool {
		if causes[i].Confidence != causes[j].Confidence {
			return causes[i].Confidence > causes[j].Confidence
		}
		return causes[i].Label < causes[j].Label
	})
	return causes, nil
}

// evalRule checks which rule conditions are satisfied and by which findings.
// The rule fires when the number of satisfied conditions reaches
// MinConditions (at least one).
func evalRule(rule CorrelationRule, findings []Finding) (RootCause, bool) {
	minConds := rule.MinConditions
	if minConds < 1 {
		minConds = 1
	}

	matchedConds := 0
	var contributors []string
	seen := map[string]bool{}
	areas := map[string]bool{}
	for _, cond := range rule.Conditions {
		condHit := false
		for _, f := range findings {
			if !conditionHolds(cond, f) {
				continue
			}
			condHit = true
			if !seen[f.ID] {
				seen[f.ID] = true
				contributors = append(contributors, f.ID)
				areas[f.Area] = true
			}
		}
		if condHit {
			matchedConds++
		}
	}
	if matchedConds < minConds || len(contributors) == 0 {
		return RootCause{}, false
	}

	sort.Strings(contributors)
	conf := confidence(matchedConds, len(rule.Conditions), len(contributors))
	return RootCause{
		Label:      rule.Label,
		FindingIDs: contributors,
		Confidence: conf,
		Rationale:  fillRationale(rule.Rationale, areas, len(contributors)),
	}, true
}

func conditionHolds(cond RuleCondition, f Finding) bool {
	lower := strings.ToLower(f.Description)
	for _, kw := range cond.Keywords {
		if !strings.Contains(lower, kw) {
			return false
		}
	}
	if len(cond.Areas) > 0 {
		hit := false
		for _, a := range cond.Areas {
			if strings.EqualFold(f.Area, a) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if cond.Measurement != nil {
		m, ok := f.Measurements[cond.Measurement.Name]
		if !ok || !cond.Measurement.holds(m.Value) {
			return false
		}
	}
	return true
}

// confidence combines rule specificity (matched conditions over total) with
// corroboration count. Monotonically increasing in both, bounded by 1.
func confidence(matched, total, corroborating int) float64 {
	specificity := float64(matched) / float64(total)
	corroboration := float64(corroborating) / float64(corroborating+1)
	return round2(specificity * corroboration)
}

func fillRationale(template string, areaSet map[string]bool, count int) string {
	areas := make([]string, 0, len(areaSet))
	for a := range areaSet {
		areas = append(areas, a)
	}
	sort.Strings(areas)
	return fmt.Sprintf("%s (corroborated by %d finding(s) in %s)",
		template, count, strings.Join(areas, ", "))
}
