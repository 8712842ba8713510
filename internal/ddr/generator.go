package ddr

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// CompletionClient is the generation backend boundary. Implementations live
// in internal/llm; the core only needs a prompt in and text out.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

const systemPrompt = `You are a structural diagnostic report writer for property inspections.
Convert the supplied structured facts into clear, client-friendly prose.

RULES:
1. Use ONLY the facts provided. Do not invent observations, areas, or values.
2. If information is missing, write "Not Available".
3. Never state a quantitative value that does not appear in the facts.
4. Use plain language; explain technical terms when unavoidable.
5. Maintain a professional, factual tone.`

const strictSuffix = `

STRICT MODE: your previous draft asserted facts not present in the supplied
data. Rewrite using only the exact findings, areas, and values listed above.
Do not mention any number that is not in the facts.`

// sectionState tracks a section through the retry-then-fallback contract.
type sectionState int

const (
	sectionDraft sectionState = iota
	sectionValidated
	sectionRetrying
	sectionFallback
)

// Generator produces the narrative sections under the fact-check contract:
// one stricter regeneration after a failed validation, then a conservative
// template built directly from the structured facts.
type Generator struct {
	cfg    *Config
	client CompletionClient
}

func NewGenerator(cfg *Config, client CompletionClient) *Generator {
	return &Generator{cfg: cfg, client: client}
}

type genResult struct {
	Sections         map[string]string
	FallbackSections []string
	Retries          int
	LLMCalls         int
}

// Generate renders every section in order. Transport failures are fatal;
// validation failures never are — they end in the flagged fallback.
func (g *Generator) Generate(ctx context.Context, report *DDRReport) (genResult, error) {
	res := genResult{Sections: map[string]string{}}
	universe := areaNames(report.Areas)

	for _, name := range SectionOrder {
		facts, allowed := g.buildFacts(name, report)
		fs := newFactSet(facts, allowed, g.cfg.Generation.FlaggedTerms)

		text, state, calls, retries, err := g.generateSection(ctx, name, facts, fs, universe, report)
		res.LLMCalls += calls
		res.Retries += retries
		if err != nil {
			return res, err
		}
		res.Sections[name] = text
		if state == sectionFallback {
			res.FallbackSections = append(res.FallbackSections, name)
		}
	}
	return res, nil
}

func (g *Generator) generateSection(ctx context.Context, name, facts string, fs factSet, universe []string, report *DDRReport) (string, sectionState, int, int, error) {
	state := sectionDraft
	calls, retries := 0, 0
	prompt := g.sectionPrompt(name, facts)

	for attempt := 0; attempt <= g.cfg.Generation.MaxRetries; attempt++ {
		if attempt > 0 {
			state = sectionRetrying
			retries++
			prompt = g.sectionPrompt(name, facts) + strictSuffix
		}
		text, err := g.client.Complete(ctx, CompletionRequest{
			System:    systemPrompt,
			Prompt:    prompt,
			MaxTokens: g.cfg.Generation.MaxTokens,
		})
		calls++
		if err != nil {
			return "", state, calls, retries, fmt.Errorf("%w: generation backend: %v", ErrDependencyUnavailable, err)
		}
		if violations := fs.check(text, universe); len(violations) == 0 {
			return strings.TrimSpace(text), sectionValidated, calls, retries, nil
		}
	}

	// Unverifiable prose is never returned as-is; substitute the
	// conservative template and flag it for the caller.
	return g.fallbackSection(name, report), sectionFallback, calls, retries, nil
}

func (g *Generator) sectionPrompt(name, facts string) string {
	switch name {
	case SectionObservations:
		return "Write the Observations section of a diagnostic report.\n" +
			"Describe each area's findings from the facts below, grouped by area, with measurements where given.\n\nFACTS:\n" + facts
	case SectionRootCauses:
		return "Write the Root Causes section of a diagnostic report.\n" +
			"Explain each identified root cause, its confidence, and the findings that support it, in simple terms.\n\nFACTS:\n" + facts
	case SectionRecommended:
		return "Write the Recommendations section of a diagnostic report.\n" +
			"Provide prioritized actions: immediate for HIGH severity, short-term for MEDIUM, monitoring for LOW.\n" +
			"Advise consulting licensed professionals where appropriate; never name contractors or products.\n\nFACTS:\n" + facts
	case SectionMissingInfo:
		return "Write the Missing Information section of a diagnostic report.\n" +
			"List the items below that were not available in the source documents, one per line.\n\nFACTS:\n" + facts
	default:
		return "Summarize the facts below.\n\nFACTS:\n" + facts
	}
}

// buildFacts enumerates only the structured facts relevant to the section
// and returns them with the area scope the generated text may mention.
func (g *Generator) buildFacts(name string, report *DDRReport) (string, []string) {
	var b strings.Builder
	switch name {
	case SectionObservations:
		for _, a := range report.Areas {
			fmt.Fprintf(&b, "Area: %s\n", a.Name)
			for _, f := range a.Findings {
				fmt.Fprintf(&b, "- %s", f.Description)
				for _, mn := range sortedMeasurementNames(f.Measurements) {
					m := f.Measurements[mn]
					fmt.Fprintf(&b, " [%s: %g%s]", mn, m.Value, m.Unit)
				}
				b.WriteString("\n")
			}
		}
		return b.String(), areaNames(report.Areas)

	case SectionRootCauses:
		if len(report.RootCauses) == 0 {
			b.WriteString("No root causes identified.\n")
		}
		allowed := map[string]bool{}
		for i, rc := range report.RootCauses {
			fmt.Fprintf(&b, "%d. %s (confidence %.2f): %s\n", i+1, rc.Label, rc.Confidence, rc.Rationale)
			for _, id := range rc.FindingIDs {
				if f, ok := report.FindingByID(id); ok {
					fmt.Fprintf(&b, "   - %s: %s\n", f.Area, f.Description)
					allowed[f.Area] = true
				}
			}
		}
		names := make([]string, 0, len(allowed))
		for a := range allowed {
			names = append(names, a)
		}
		sort.Strings(names)
		return b.String(), names

	case SectionRecommended:
		fmt.Fprintf(&b, "Overall severity: %s\n", report.Overall.Level)
		byLevel := map[SeverityLevel][]string{}
		for _, s := range report.Scores {
			if f, ok := report.FindingByID(s.FindingID); ok {
				byLevel[s.Level] = append(byLevel[s.Level], fmt.Sprintf("%s: %s", f.Area, f.Description))
			}
		}
		for _, lvl := range []SeverityLevel{SeverityHigh, SeverityMedium, SeverityLow} {
			if len(byLevel[lvl]) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s priority:\n", lvl)
			for _, line := range byLevel[lvl] {
				fmt.Fprintf(&b, "- %s\n", line)
			}
		}
		for _, rc := range report.RootCauses {
			fmt.Fprintf(&b, "Root cause: %s: %s\n", rc.Label, rc.Rationale)
		}
		return b.String(), areaNames(report.Areas)

	case SectionMissingInfo:
		for _, item := range missingInformation(report) {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		return b.String(), areaNames(report.Areas)
	}
	return "", nil
}

// fallbackSection builds the conservative, non-generated rendering straight
// from the structured facts.
func (g *Generator) fallbackSection(name string, report *DDRReport) string {
	var b strings.Builder
	b.WriteString("[Generated text failed fact validation; structured summary follows.]\n\n")
	switch name {
	case SectionObservations:
		for _, a := range report.Areas {
			fmt.Fprintf(&b, "%s:\n", a.Name)
			for _, f := range a.Findings {
				fmt.Fprintf(&b, "- %s\n", f.Description)
			}
		}
	case SectionRootCauses:
		if len(report.RootCauses) == 0 {
			b.WriteString("No root causes identified.\n")
		}
		for _, rc := range report.RootCauses {
			fmt.Fprintf(&b, "- %s (confidence %.2f): %s\n", rc.Label, rc.Confidence, rc.Rationale)
		}
	case SectionRecommended:
		fmt.Fprintf(&b, "Overall severity: %s. ", report.Overall.Level)
		switch report.Overall.Level {
		case SeverityHigh:
			b.WriteString("Immediate professional intervention recommended.\n")
		case SeverityMedium:
			b.WriteString("Timely remediation advised to prevent escalation.\n")
		default:
			b.WriteString("Regular monitoring recommended.\n")
		}
	case SectionMissingInfo:
		for _, item := range missingInformation(report) {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return strings.TrimSpace(b.String())
}

func missingInformation(report *DDRReport) []string {
	var missing []string
	if report.Property.Address == "" {
		missing = append(missing, "Property address")
	}
	if report.Property.InspectionDate == "" {
		missing = append(missing, "Inspection date")
	}
	if report.Property.InspectorName == "" {
		missing = append(missing, "Inspector name")
	}
	var noMeasurements []string
	for _, a := range report.Areas {
		hasMeas := false
		for _, f := range a.Findings {
			if len(f.Measurements) > 0 {
				hasMeas = true
				break
			}
		}
		if !hasMeas {
			noMeasurements = append(noMeasurements, a.Name)
		}
	}
	if len(noMeasurements) > 0 {
		missing = append(missing, "Quantitative measurements for: "+strings.Join(noMeasurements, ", "))
	}
	if report.Metadata.SemanticDedupSkipped {
		missing = append(missing, "Semantic duplicate analysis (embedding backend unavailable)")
	}
	if len(missing) == 0 {
		missing = append(missing, "All key information available")
	}
	return missing
}

func areaNames(areas []Area) []string {
	names := make([]string, 0, len(areas))
	for _, a := range areas {
		names = append(names, a.Name)
	}
	return names
}

func sortedMeasurementNames(m map[string]Measurement) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
