package ddr

import "time"

const Disclaimer = "This report is generated from inspection and measurement data. " +
	"For detailed remediation, consult licensed professionals."

// FallbackAreaName receives content that matched no configured area pattern.
const FallbackAreaName = "General"

type SeverityLevel string

const (
	SeverityLow    SeverityLevel = "LOW"
	SeverityMedium SeverityLevel = "MEDIUM"
	SeverityHigh   SeverityLevel = "HIGH"
)

type ReportMode string

const (
	ReportModeComplete ReportMode = "COMPLETE"
	ReportModeDegraded ReportMode = "DEGRADED"
)

type Provenance string

const (
	ProvenanceText  Provenance = "text"
	ProvenanceTable Provenance = "table"
)

// Narrative section names, in report order.
const (
	SectionObservations = "observations"
	SectionRootCauses   = "root_causes"
	SectionRecommended  = "recommendations"
	SectionMissingInfo  = "missing_information"
)

var SectionOrder = []string{SectionObservations, SectionRootCauses, SectionRecommended, SectionMissingInfo}

// Measurement is a single named quantitative reading attached to a Finding.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Finding is one observed issue. Description is never empty and Area is
// always set; content that could not be localized lands in FallbackAreaName.
type Finding struct {
	ID           string                 `json:"id"`
	Area         string                 `json:"area"`
	Description  string                 `json:"description"`
	Measurements map[string]Measurement `json:"measurements,omitempty"`
	Page         int                    `json:"page,omitempty"`
	TableRef     string                 `json:"table_ref,omitempty"`
	Provenance   Provenance             `json:"provenance"`
}

// Clone returns a deep copy so a later stage cannot mutate an earlier
// stage's snapshot through the shared measurement map.
func (f Finding) Clone() Finding {
	c := f
	if f.Measurements != nil {
		c.Measurements = make(map[string]Measurement, len(f.Measurements))
		for k, v := range f.Measurements {
			c.Measurements[k] = v
		}
	}
	return c
}

// Area is a named logical zone owning an ordered sequence of Findings.
type Area struct {
	Name     string    `json:"name"`
	Findings []Finding `json:"findings"`
}

func (a Area) Clone() Area {
	c := Area{Name: a.Name, Findings: make([]Finding, len(a.Findings))}
	for i, f := range a.Findings {
		c.Findings[i] = f.Clone()
	}
	return c
}

func cloneAreas(areas []Area) []Area {
	out := make([]Area, len(areas))
	for i, a := range areas {
		out[i] = a.Clone()
	}
	return out
}

type GroupMember struct {
	FindingID  string  `json:"finding_id"`
	Similarity float64 `json:"similarity"`
}

// DuplicateGroup is a cluster of Findings judged to describe the same
// real-world issue. Groups partition the Finding set; CanonicalID is always
// one of the member IDs.
type DuplicateGroup struct {
	CanonicalID string        `json:"canonical_id"`
	Members     []GroupMember `json:"members"`
}

// RootCause links one or more Findings, possibly across Areas, to an
// inferred causal explanation. The Finding relation lives here only;
// Findings own no knowledge of RootCauses.
type RootCause struct {
	Label      string   `json:"label"`
	FindingIDs []string `json:"finding_ids"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// Factor is one weighted contribution to a severity score, kept for audit.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
}

func (f Factor) Contribution() float64 { return f.Weight * f.Score }

type SeverityScore struct {
	FindingID string        `json:"finding_id"`
	Level     SeverityLevel `json:"level"`
	Raw       float64       `json:"raw"`
	Factors   []Factor      `json:"factors,omitempty"`
}

type OverallSeverity struct {
	Level SeverityLevel `json:"level"`
	Raw   float64       `json:"raw"`
}

// PropertyDetails is inspection metadata carried through to the report.
type PropertyDetails struct {
	PropertyID     string `json:"property_id,omitempty"`
	Address        string `json:"address,omitempty"`
	InspectionDate string `json:"inspection_date,omitempty"`
	InspectorName  string `json:"inspector_name,omitempty"`
}

// Table is one extracted table: a header row plus data rows, as produced by
// the external extraction collaborator. No assumptions about PDF layout.
type Table struct {
	Page    int        `json:"page,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ExtractionInput is the raw upstream payload: text lines and tables.
type ExtractionInput struct {
	CaseID   string          `json:"case_id"`
	Property PropertyDetails `json:"property,omitempty"`
	Lines    []string        `json:"lines"`
	Tables   []Table         `json:"tables,omitempty"`
}

// RunMetadata records what happened during a pipeline run: executed stages,
// absorbed degradations, and generation retry accounting.
type RunMetadata struct {
	StagesExecuted       []string   `json:"stages_executed"`
	StageFailed          string     `json:"stage_failed,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          time.Time  `json:"completed_at"`
	Mode                 ReportMode `json:"mode"`
	SemanticDedupSkipped bool       `json:"semantic_dedup_skipped"`
	SkippedTableRows     int        `json:"skipped_table_rows"`
	LLMCalls             int        `json:"llm_calls"`
	SectionRetries       int        `json:"section_retries"`
	FallbackSections     []string   `json:"fallback_sections,omitempty"`
	Notes                []string   `json:"notes,omitempty"`
}

// DDRReport is the final aggregate: deduplicated Areas, the correlation and
// severity results, and the generated narrative sections. Created once per
// run and immutable after the pipeline marks it complete.
type DDRReport struct {
	CaseID          string          `json:"case_id"`
	Property        PropertyDetails `json:"property"`
	Areas           []Area          `json:"areas"`
	DuplicateGroups []DuplicateGroup `json:"duplicate_groups,omitempty"`
	RootCauses      []RootCause     `json:"root_causes"`
	Scores          []SeverityScore `json:"scores"`
	Overall         OverallSeverity `json:"overall_severity"`
	Sections        map[string]string `json:"sections"`
	Metadata        RunMetadata     `json:"metadata"`
	Disclaimer      string          `json:"disclaimer"`
}

// FindingByID resolves an ID against the report's areas.
func (r *DDRReport) FindingByID(id string) (Finding, bool) {
	for _, a := range r.Areas {
		for _, f := range a.Findings {
			if f.ID == id {
				return f, true
			}
		}
	}
	return Finding{}, false
}

// AllFindings returns findings in area order, finding order.
func (r *DDRReport) AllFindings() []Finding {
	var out []Finding
	for _, a := range r.Areas {
		out = append(out, a.Findings...)
	}
	return out
}
