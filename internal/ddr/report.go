package ddr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Section headings as they appear in the rendered document.
var sectionTitles = map[string]string{
	SectionObservations: "Observations",
	SectionRootCauses:   "Root Causes",
	SectionRecommended:  "Recommendations",
	SectionMissingInfo:  "Missing Information",
}

// BuildMarkdown renders the full diagnostic document. The narrative sections
// come first; the structured appendices (severity table, duplicate audit,
// run metadata) let a reviewer trace every claim back to a finding.
func BuildMarkdown(report *DDRReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Detailed Diagnostic Report\n\n")
	if report.CaseID != "" {
		fmt.Fprintf(&b, "- Case ID: %s\n", sanitize(report.CaseID))
	}
	fmt.Fprintf(&b, "- Property: %s\n", orNA(report.Property.Address))
	fmt.Fprintf(&b, "- Inspection Date: %s\n", orNA(report.Property.InspectionDate))
	fmt.Fprintf(&b, "- Inspector: %s\n", orNA(report.Property.InspectorName))
	fmt.Fprintf(&b, "- Overall Severity: **%s**\n", report.Overall.Level)
	fmt.Fprintf(&b, "- Mode: %s\n\n", report.Metadata.Mode)
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	if report.Metadata.Mode == ReportModeDegraded {
		fmt.Fprintf(&b, "> DEGRADED: stage `%s` failed. Sections below reflect the stages that completed; treat this document as partial pending re-run.\n\n", sanitize(report.Metadata.StageFailed))
	}

	for _, name := range SectionOrder {
		text, ok := report.Sections[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", sectionTitles[name], strings.TrimSpace(text))
	}

	writeSeverityAppendix(&b, report)
	writeRootCauseAppendix(&b, report)
	writeDuplicateAppendix(&b, report)

	fmt.Fprintf(&b, "## Appendix: Run Metadata\n\n")
	fmt.Fprintf(&b, "```json\n%s\n```\n", prettyJSON(report.Metadata))
	return b.String()
}

func writeSeverityAppendix(b *strings.Builder, report *DDRReport) {
	if len(report.Scores) == 0 {
		return
	}
	fmt.Fprintf(b, "## Appendix: Severity Breakdown\n\n")
	fmt.Fprintf(b, "| Finding | Area | Description | Severity | Score | Factors |\n")
	fmt.Fprintf(b, "|---------|------|-------------|----------|-------|---------|\n")
	for _, s := range report.Scores {
		f, ok := report.FindingByID(s.FindingID)
		if !ok {
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %.2f | %s |\n",
			s.FindingID, sanitizeCell(f.Area), sanitizeCell(f.Description),
			s.Level, s.Raw, sanitizeCell(factorSummary(s.Factors)))
	}
	b.WriteString("\n")
}

func writeRootCauseAppendix(b *strings.Builder, report *DDRReport) {
	if len(report.RootCauses) == 0 {
		return
	}
	fmt.Fprintf(b, "## Appendix: Root Cause Attribution\n\n")
	for _, rc := range report.RootCauses {
		fmt.Fprintf(b, "- **%s** (confidence %.2f): %s\n", sanitize(rc.Label), rc.Confidence, sanitize(rc.Rationale))
		fmt.Fprintf(b, "  - Findings: %s\n", strings.Join(rc.FindingIDs, ", "))
	}
	b.WriteString("\n")
}

func writeDuplicateAppendix(b *strings.Builder, report *DDRReport) {
	if len(report.DuplicateGroups) == 0 {
		return
	}
	fmt.Fprintf(b, "## Appendix: Duplicate Findings Collapsed\n\n")
	fmt.Fprintf(b, "| Canonical | Member | Similarity |\n")
	fmt.Fprintf(b, "|-----------|--------|------------|\n")
	for _, g := range report.DuplicateGroups {
		for _, m := range g.Members {
			fmt.Fprintf(b, "| %s | %s | %.2f |\n", g.CanonicalID, m.FindingID, m.Similarity)
		}
	}
	b.WriteString("\n")
}

func factorSummary(factors []Factor) string {
	parts := make([]string, 0, len(factors))
	for _, fc := range factors {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", fc.Name, fc.Contribution()))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "; ")
}

func prettyJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// sanitizeCell prepares text for use inside a markdown table cell.
func sanitizeCell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not Available"
	}
	return sanitize(s)
}
