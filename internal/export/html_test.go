package export

import (
	"strings"
	"testing"

	"github.com/inspectforge/ddrgen/internal/ddr"
)

func sampleReport() *ddr.DDRReport {
	return &ddr.DDRReport{
		CaseID:   "CASE-7",
		Property: ddr.PropertyDetails{Address: "12 Hill Road"},
		Overall:  ddr.OverallSeverity{Level: ddr.SeverityHigh, Raw: 0.9},
		Metadata: ddr.RunMetadata{Mode: ddr.ReportModeComplete},
	}
}

func TestBuildHTML(t *testing.T) {
	md := "# Detailed Diagnostic Report\n\n## Observations\n\nDampness recorded.\n\n## Appendix: Severity Breakdown\n\n| Finding | Level |\n|---|---|\n| F-0001 | HIGH |\n"
	doc, err := BuildHTML(sampleReport(), md)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<!doctype html>",
		"Severity: HIGH",
		"CASE-7",
		"12 Hill Road",
		"<h2>Observations</h2>",
		"<table>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if !strings.Contains(doc, "break-before:page") {
		t.Error("appendix heading should force a page break")
	}
}

func TestBuildHTMLDegradedBadge(t *testing.T) {
	r := sampleReport()
	r.Metadata.Mode = ddr.ReportModeDegraded
	doc, err := BuildHTML(r, "# Report")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, "DEGRADED") {
		t.Error("degraded badge missing")
	}
}

func TestBuildHTMLEscapesMetadata(t *testing.T) {
	r := sampleReport()
	r.Property.Address = `12 <script>alert("x")</script> Rd`
	doc, err := BuildHTML(r, "# Report")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(doc, "<script>alert") {
		t.Error("address must be HTML-escaped")
	}
}
