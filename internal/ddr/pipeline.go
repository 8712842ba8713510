package ddr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Stage names, in execution order.
const (
	StageStructure = "structure"
	StageDedup     = "dedup"
	StageCorrelate = "correlate"
	StageSeverity  = "severity"
	StageGenerate  = "generate"
)

type ProgressFn func(stage, message string)

// Pipeline sequences the analysis stages over immutable snapshots. One
// Pipeline may serve concurrent runs: it carries only read-only
// configuration and stateless stage implementations; all per-run state
// lives in the DDRReport being built.
type Pipeline struct {
	cfg        Config
	structurer *Structurer
	dedup      *Deduplicator
	correlator *Correlator
	severity   *SeverityEngine
	generator  *Generator
	progress   ProgressFn
}

type Option func(*Pipeline)

func WithEmbedder(e Embedder) Option {
	return func(p *Pipeline) { p.dedup = NewDeduplicator(&p.cfg, e) }
}

func WithProgress(fn ProgressFn) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New validates the configuration and wires the stages. Invalid
// configuration fails here, before any run starts.
func New(cfg Config, client CompletionClient, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, &ConfigError{Field: "completion_client", Msg: "required"}
	}
	p := &Pipeline{cfg: cfg}
	p.structurer = NewStructurer(&p.cfg)
	p.dedup = NewDeduplicator(&p.cfg, nil)
	p.correlator = NewCorrelator(&p.cfg)
	p.severity = NewSeverityEngine(&p.cfg)
	p.generator = NewGenerator(&p.cfg, client)
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes the full pipeline. On a stage failure the returned error is
// a *StageError carrying the stage name and the partial report built so
// far, so callers may still deliver a degraded report. Cancellation is
// honored at stage boundaries only.
func (p *Pipeline) Run(ctx context.Context, in ExtractionInput) (*DDRReport, error) {
	report := &DDRReport{
		CaseID:     strings.TrimSpace(in.CaseID),
		Property:   in.Property,
		Sections:   map[string]string{},
		Disclaimer: Disclaimer,
		Metadata:   RunMetadata{StartedAt: time.Now(), Mode: ReportModeComplete},
	}

	if err := ctx.Err(); err != nil {
		return report, p.fail(report, StageStructure, err)
	}
	p.emit(StageStructure, "Structuring extracted content into areas...")
	structured, err := p.structurer.Structure(in)
	if err != nil {
		return report, p.fail(report, StageStructure, err)
	}
	report.Areas = cloneAreas(structured.Areas)
	report.Metadata.SkippedTableRows = structured.SkippedTableRows
	p.markExecuted(report, StageStructure)

	if err := ctx.Err(); err != nil {
		return report, p.fail(report, StageDedup, err)
	}
	p.emit(StageDedup, "Collapsing duplicate findings...")
	deduped, err := p.dedup.Deduplicate(ctx, report.Areas)
	if err != nil {
		return report, p.fail(report, StageDedup, err)
	}
	report.Areas = deduped.Areas
	report.DuplicateGroups = deduped.Groups
	report.Metadata.SemanticDedupSkipped = deduped.SemanticSkipped
	if deduped.SemanticSkipped {
		report.Metadata.Notes = append(report.Metadata.Notes, "semantic dedup skipped")
	}
	p.markExecuted(report, StageDedup)

	if err := ctx.Err(); err != nil {
		return report, p.fail(report, StageCorrelate, err)
	}
	p.emit(StageCorrelate, "Correlating findings across areas...")
	causes, err := p.correlator.Correlate(report.Areas)
	if err != nil {
		return report, p.fail(report, StageCorrelate, err)
	}
	report.RootCauses = causes
	p.markExecuted(report, StageCorrelate)

	if err := ctx.Err(); err != nil {
		return report, p.fail(report, StageSeverity, err)
	}
	p.emit(StageSeverity, "Scoring severity...")
	scores, overall, err := p.severity.ScoreAll(report.Areas, report.RootCauses)
	if err != nil {
		return report, p.fail(report, StageSeverity, err)
	}
	report.Scores = scores
	report.Overall = overall
	p.markExecuted(report, StageSeverity)

	if err := ctx.Err(); err != nil {
		return report, p.fail(report, StageGenerate, err)
	}
	p.emit(StageGenerate, "Generating narrative sections...")
	gen, err := p.generator.Generate(ctx, report)
	report.Metadata.LLMCalls += gen.LLMCalls
	report.Metadata.SectionRetries += gen.Retries
	if err != nil {
		return report, p.fail(report, StageGenerate, err)
	}
	report.Sections = gen.Sections
	report.Metadata.FallbackSections = gen.FallbackSections
	if len(gen.FallbackSections) > 0 {
		report.Metadata.Notes = append(report.Metadata.Notes,
			fmt.Sprintf("fallback template used for: %s", strings.Join(gen.FallbackSections, ", ")))
	}
	p.markExecuted(report, StageGenerate)

	report.Metadata.CompletedAt = time.Now()
	return report, nil
}

func (p *Pipeline) fail(report *DDRReport, stage string, err error) error {
	report.Metadata.StageFailed = stage
	report.Metadata.Mode = ReportModeDegraded
	report.Metadata.CompletedAt = time.Now()
	return &StageError{Stage: stage, Err: err, Partial: report}
}

func (p *Pipeline) markExecuted(report *DDRReport, stage string) {
	report.Metadata.StagesExecuted = append(report.Metadata.StagesExecuted, stage)
}

func (p *Pipeline) emit(stage, message string) {
	if p.progress != nil {
		p.progress(stage, message)
	}
}
