// Package export renders a diagnostic report for delivery: markdown to a
// printable HTML document, and HTML to PDF through headless Chromium.
package export

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/inspectforge/ddrgen/internal/ddr"
)

const styleCSS = `
body{font-family:Georgia,'Times New Roman',serif;color:#1c1917;line-height:1.55;font-size:0.95rem;}
h1{font-size:1.5rem;border-bottom:2px solid #92400e;padding-bottom:0.3rem;}
h2{font-size:1.15rem;color:#78350f;margin-top:1.4rem;}
blockquote{border-left:3px solid #b91c1c;margin:0;padding:0.2rem 0.8rem;color:#7f1d1d;background:#fef2f2;}
table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
code,pre{font-family:ui-monospace,monospace;font-size:0.78rem;background:#f5f5f4;}
pre{padding:0.5rem;overflow-x:auto;}
.report-badge{display:inline-block;background:#fef3c7;color:#78350f;border:1px solid #fcd34d;border-radius:4px;padding:0.1rem 0.5rem;font-size:0.75rem;font-family:sans-serif;margin-right:0.4rem;}
.report-badge.high{background:#fee2e2;color:#7f1d1d;border-color:#fca5a5;}
.report-meta{color:#44403c;font-size:0.85rem;font-family:sans-serif;margin-bottom:0.8rem;}
.report-meta strong{color:#1c1917;}
`

// BuildHTML converts the rendered markdown into a standalone printable
// document with a severity badge header.
func BuildHTML(report *ddr.DDRReport, markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	contentHTML := applyPrintLayoutHooks(content.String())

	var head strings.Builder
	head.WriteString("<div class='report-meta'>")
	if report.CaseID != "" {
		head.WriteString("<div><strong>Case:</strong> " + html.EscapeString(report.CaseID) + "</div>")
	}
	if report.Property.Address != "" {
		head.WriteString("<div><strong>Property:</strong> " + html.EscapeString(report.Property.Address) + "</div>")
	}
	head.WriteString("</div>")
	head.WriteString(severityBadge(report))
	if report.Metadata.Mode == ddr.ReportModeDegraded {
		head.WriteString("<span class='report-badge high'>DEGRADED</span>")
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>Diagnostic Report</title>" +
		"<style>" + styleCSS +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		"@media print{ @page{size:auto;margin:12mm;} }" +
		"</style></head><body>" +
		head.String() + contentHTML +
		"</body></html>", nil
}

func severityBadge(report *ddr.DDRReport) string {
	class := "report-badge"
	if report.Overall.Level == ddr.SeverityHigh {
		class += " high"
	}
	return "<span class='" + class + "'>Severity: " + html.EscapeString(string(report.Overall.Level)) + "</span>"
}

// applyPrintLayoutHooks starts each appendix on a fresh page in print.
func applyPrintLayoutHooks(contentHTML string) string {
	reAppendix := regexp.MustCompile(`(?i)<h2([^>]*)>\s*(Appendix:[^<]*)\s*</h2>`)
	return reAppendix.ReplaceAllString(contentHTML,
		`<h2$1 style="break-before:page;page-break-before:always;">$2</h2>`)
}
