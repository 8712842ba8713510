// ddr-pipeline runs the full diagnostic pipeline over a PDF extraction
// dump and writes the report as markdown and JSON. With -db it also
// persists the run for later re-rendering.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/inspectforge/ddrgen/internal/ddr"
	"github.com/inspectforge/ddrgen/internal/embed"
	"github.com/inspectforge/ddrgen/internal/llm"
	"github.com/inspectforge/ddrgen/internal/runstore"
)

func main() {
	inPath := flag.String("in", "", "Path to extraction JSON (required)")
	outDir := flag.String("out", ".", "Output directory for report.md and report.json")
	cfgPath := flag.String("config", "", "Tuning YAML (defaults embedded)")
	backend := flag.String("backend", "anthropic", "Completion backend: anthropic or ollama")
	ollamaURL := flag.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	ollamaModel := flag.String("ollama-model", "llama3", "Ollama completion model")
	embedModel := flag.String("embed-model", "", "Ollama embedding model (empty disables semantic dedup)")
	dbPath := flag.String("db", "", "SQLite path for run persistence (empty disables)")
	flag.Parse()

	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	client, err := buildClient(*backend, *ollamaURL, *ollamaModel)
	if err != nil {
		log.Fatal(err)
	}

	opts := []ddr.Option{
		ddr.WithProgress(func(stage, msg string) { log.Printf("[%s] %s", stage, msg) }),
	}
	if *embedModel != "" {
		opts = append(opts, ddr.WithEmbedder(embed.NewOllamaEmbedder(*ollamaURL, *embedModel)))
	}
	pipeline, err := ddr.New(cfg, client, opts...)
	if err != nil {
		log.Fatal(err)
	}

	input, err := readInput(*inPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, runErr := pipeline.Run(ctx, input)
	if runErr != nil {
		var se *ddr.StageError
		if errors.As(runErr, &se) && se.Partial != nil {
			log.Printf("stage %s failed: %v; writing degraded report", se.Stage, se.Err)
			report = se.Partial
		} else {
			log.Fatal(runErr)
		}
	}

	markdown := ddr.BuildMarkdown(report)
	if err := writeOutputs(*outDir, report, markdown); err != nil {
		log.Fatal(err)
	}
	if *dbPath != "" {
		if err := persist(*dbPath, report, markdown); err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("report written to %s (mode=%s, overall=%s)", *outDir, report.Metadata.Mode, report.Overall.Level)
	if runErr != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (ddr.Config, error) {
	if path == "" {
		return ddr.DefaultConfig(), nil
	}
	return ddr.LoadConfig(path)
}

func buildClient(backend, ollamaURL, ollamaModel string) (ddr.CompletionClient, error) {
	switch backend {
	case "anthropic":
		return llm.NewAnthropicClientFromEnv()
	case "ollama":
		return llm.NewOllamaClient(ollamaURL, ollamaModel), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func readInput(path string) (ddr.ExtractionInput, error) {
	var input ddr.ExtractionInput
	data, err := os.ReadFile(path)
	if err != nil {
		return input, fmt.Errorf("read input: %w", err)
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return input, fmt.Errorf("parse input: %w", err)
	}
	return input, nil
}

func writeOutputs(dir string, report *ddr.DDRReport, markdown string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write report.md: %w", err)
	}
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), blob, 0o644); err != nil {
		return fmt.Errorf("write report.json: %w", err)
	}
	return nil
}

func persist(dbPath string, report *ddr.DDRReport, markdown string) error {
	store, err := runstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	if report.CaseID != "" {
		runID = fmt.Sprintf("%s-%d", report.CaseID, time.Now().Unix())
	}
	return store.Save(runID, report, markdown)
}
