// render-ddr-report turns a stored or on-disk report into a printable
// HTML or PDF document.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/inspectforge/ddrgen/internal/ddr"
	"github.com/inspectforge/ddrgen/internal/export"
	"github.com/inspectforge/ddrgen/internal/runstore"
)

func main() {
	inPath := flag.String("in", "", "Path to report.json (exclusive with -db/-run)")
	dbPath := flag.String("db", "", "SQLite path to load a stored run from")
	runID := flag.String("run", "", "Run ID inside -db")
	outPath := flag.String("out", "report.pdf", "Output file (.pdf or .html)")
	format := flag.String("format", "pdf", "Output format: pdf or html")
	flag.Parse()

	report, markdown, err := load(*inPath, *dbPath, *runID)
	if err != nil {
		log.Fatal(err)
	}
	if markdown == "" {
		markdown = ddr.BuildMarkdown(report)
	}

	htmlDoc, err := export.BuildHTML(report, markdown)
	if err != nil {
		log.Fatal(err)
	}

	var out []byte
	switch *format {
	case "html":
		out = []byte(htmlDoc)
	case "pdf":
		renderer := export.NewChromiumPDFRenderer()
		out, err = renderer.Render(context.Background(), htmlDoc)
		if err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown format %q", *format)
	}

	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%d bytes)", *outPath, len(out))
}

func load(inPath, dbPath, runID string) (*ddr.DDRReport, string, error) {
	switch {
	case inPath != "":
		data, err := os.ReadFile(inPath)
		if err != nil {
			return nil, "", fmt.Errorf("read report: %w", err)
		}
		var report ddr.DDRReport
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, "", fmt.Errorf("parse report: %w", err)
		}
		return &report, "", nil
	case dbPath != "" && runID != "":
		store, err := runstore.Open(dbPath)
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		return store.Get(runID)
	default:
		return nil, "", fmt.Errorf("either -in or both -db and -run are required")
	}
}
