package ddr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedClient replies per-call; when the script runs out the last entry
// repeats.
type scriptedClient struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (c *scriptedClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	c.calls++
	c.prompts = append(c.prompts, req.Prompt)
	if c.err != nil {
		return "", c.err
	}
	i := c.calls - 1
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	return c.replies[i], nil
}

func testReport() *DDRReport {
	return &DDRReport{
		CaseID: "CASE-7",
		Areas: []Area{
			{Name: "Bathroom", Findings: []Finding{
				mkFinding("F-0001", "Bathroom", "Dampness on ceiling",
					map[string]Measurement{"moisture": {Value: 38, Unit: "%"}}),
			}},
		},
		RootCauses: []RootCause{{Label: "tile-joint-seepage", FindingIDs: []string{"F-0001"}, Confidence: 0.5, Rationale: "seepage through joints"}},
		Scores:     []SeverityScore{{FindingID: "F-0001", Level: SeverityMedium, Raw: 0.7}},
		Overall:    OverallSeverity{Level: SeverityMedium, Raw: 0.7},
		Sections:   map[string]string{},
	}
}

func TestGenerateAllSectionsValidated(t *testing.T) {
	cfg := testConfig()
	client := &scriptedClient{replies: []string{
		"Dampness was recorded on the Bathroom ceiling with moisture at 38 percent.",
		"One likely cause is seepage through tile joints in the Bathroom.",
		"Overall severity is medium. Timely remediation of the Bathroom dampness is advised.",
		"Not Available: property address, inspection date, and inspector name.",
	}}
	g := NewGenerator(&cfg, client)

	res, err := g.Generate(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sections) != len(SectionOrder) {
		t.Fatalf("sections = %d, want %d", len(res.Sections), len(SectionOrder))
	}
	if len(res.FallbackSections) != 0 {
		t.Errorf("no fallbacks expected, got %v", res.FallbackSections)
	}
	if res.LLMCalls != len(SectionOrder) {
		t.Errorf("llm calls = %d, want %d", res.LLMCalls, len(SectionOrder))
	}
}

func TestGenerateRetriesThenFallsBack(t *testing.T) {
	cfg := testConfig()
	// Every draft invents a number the facts never mention.
	client := &scriptedClient{replies: []string{"Moisture levels of 97% were found throughout."}}
	g := NewGenerator(&cfg, client)

	res, err := g.Generate(context.Background(), testReport())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.FallbackSections) != len(SectionOrder) {
		t.Fatalf("all sections should fall back, got %v", res.FallbackSections)
	}
	// One draft plus one stricter retry per section.
	wantCalls := len(SectionOrder) * (1 + cfg.Generation.MaxRetries)
	if res.LLMCalls != wantCalls {
		t.Errorf("llm calls = %d, want %d", res.LLMCalls, wantCalls)
	}
	if res.Retries != len(SectionOrder)*cfg.Generation.MaxRetries {
		t.Errorf("retries = %d, want %d", res.Retries, len(SectionOrder)*cfg.Generation.MaxRetries)
	}
	for name, text := range res.Sections {
		if !strings.HasPrefix(text, "[Generated text failed fact validation") {
			t.Errorf("section %s should carry the fallback marker, got %q", name, text)
		}
		if strings.Contains(text, "97") {
			t.Errorf("fallback for %s leaked the invented value", name)
		}
	}
	// The retry prompt must escalate.
	if !strings.Contains(client.prompts[1], "STRICT MODE") {
		t.Error("second attempt should use the strict prompt")
	}
}

func TestGenerateTransportFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	client := &scriptedClient{err: errors.New("connection refused")}
	g := NewGenerator(&cfg, client)

	_, err := g.Generate(context.Background(), testReport())
	if err == nil {
		t.Fatal("transport failure must be fatal")
	}
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("expected ErrDependencyUnavailable, got %v", err)
	}
}

func TestGenerateRootCauseSectionScopesAreas(t *testing.T) {
	cfg := testConfig()
	report := testReport()
	report.Areas = append(report.Areas, Area{Name: "Kitchen", Findings: []Finding{
		mkFinding("F-0002", "Kitchen", "Crack near window", nil),
	}})
	// Draft mentions Kitchen, which contributes to no root cause.
	client := &scriptedClient{replies: []string{
		"ok",
		"The seepage also involves the Kitchen.",
		"The seepage stems from tile joints in the Bathroom.",
		"ok", "ok",
	}}
	g := NewGenerator(&cfg, client)
	res, err := g.Generate(context.Background(), report)
	if err != nil {
		t.Fatal(err)
	}
	if res.Retries == 0 {
		t.Error("out-of-scope area mention should force a retry")
	}
	if strings.Contains(res.Sections[SectionRootCauses], "Kitchen") {
		t.Errorf("validated root-cause section still mentions Kitchen: %q", res.Sections[SectionRootCauses])
	}
}

func TestMissingInformationItems(t *testing.T) {
	report := testReport()
	report.Metadata.SemanticDedupSkipped = true
	items := missingInformation(report)

	joined := strings.Join(items, "\n")
	for _, want := range []string{"Property address", "Inspection date", "Inspector name", "Semantic duplicate analysis"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing item %q in %v", want, items)
		}
	}

	report.Property = PropertyDetails{Address: "12 Hill Rd", InspectionDate: "2026-02-11", InspectorName: "S. Rao"}
	report.Metadata.SemanticDedupSkipped = false
	items = missingInformation(report)
	if len(items) != 1 || items[0] != "All key information available" {
		t.Errorf("fully populated report should report nothing missing, got %v", items)
	}
}
