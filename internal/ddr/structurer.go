package ddr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Structurer organizes raw extracted text and tables into typed per-area
// findings. It does no duplicate detection; that is the next stage's job.
type Structurer struct {
	cfg *Config
}

func NewStructurer(cfg *Config) *Structurer { return &Structurer{cfg: cfg} }

type structureResult struct {
	Areas            []Area
	SkippedTableRows int
}

// Sentence boundaries require trailing whitespace or end-of-line so that
// decimals like "4.5" survive intact.
var sentenceSplit = regexp.MustCompile(`[.;\n](?:\s+|$)`)

// Structure splits the input into Areas. Content matching no configured
// area pattern is assigned to the "General" area rather than dropped.
func (s *Structurer) Structure(in ExtractionInput) (structureResult, error) {
	if len(in.Lines) == 0 && len(in.Tables) == 0 {
		return structureResult{}, &ExtractionError{Msg: "no text lines or tables"}
	}

	findings := map[string][]Finding{}
	order := []string{}
	add := func(area string, f Finding) {
		if _, ok := findings[area]; !ok {
			order = append(order, area)
		}
		f.Area = area
		findings[area] = append(findings[area], f)
	}

	current := FallbackAreaName
	for _, line := range in.Lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, rest, ok := s.matchAreaHeading(line); ok {
			current = name
			line = rest
			if line == "" {
				continue
			}
		}
		for _, sent := range splitSentences(line) {
			if !s.isFindingCandidate(sent) {
				continue
			}
			add(current, Finding{
				Description:  sent,
				Measurements: extractMeasurements(sent),
				Provenance:   ProvenanceText,
			})
		}
	}

	skipped := 0
	for ti, table := range in.Tables {
		descCol, areaCol, measCols := classifyColumns(table.Headers)
		if descCol < 0 {
			skipped += len(table.Rows)
			continue
		}
		for ri, row := range table.Rows {
			if descCol >= len(row) || strings.TrimSpace(row[descCol]) == "" {
				skipped++
				continue
			}
			desc := strings.TrimSpace(row[descCol])
			// Tables without an area column inherit the surrounding text
			// heading; an area column with an empty cell falls to General.
			area := FallbackAreaName
			if areaCol < 0 {
				area = current
			} else if areaCol < len(row) && strings.TrimSpace(row[areaCol]) != "" {
				area = s.canonicalArea(row[areaCol])
			}
			meas := extractMeasurements(desc)
			for col, name := range measCols {
				if col >= len(row) {
					continue
				}
				if v, ok := parseNumeric(row[col]); ok {
					if meas == nil {
						meas = map[string]Measurement{}
					}
					meas[name.name] = Measurement{Value: v, Unit: name.unit}
				}
			}
			add(area, Finding{
				Description:  desc,
				Measurements: meas,
				Page:         table.Page,
				TableRef:     fmt.Sprintf("table %d row %d", ti+1, ri+1),
				Provenance:   ProvenanceTable,
			})
		}
	}

	areas := make([]Area, 0, len(order))
	// General sorts last; otherwise first-appearance order.
	for _, name := range order {
		if name == FallbackAreaName {
			continue
		}
		areas = append(areas, Area{Name: name, Findings: findings[name]})
	}
	if fs, ok := findings[FallbackAreaName]; ok {
		areas = append(areas, Area{Name: FallbackAreaName, Findings: fs})
	}

	assignFindingIDs(areas)
	return structureResult{Areas: areas, SkippedTableRows: skipped}, nil
}

// matchAreaHeading reports whether the line opens a new area section. A
// heading is a line that starts with (or consists of) an area pattern,
// optionally followed by a colon and trailing content. A candidate that
// itself contains a finding keyword is a finding sentence that happens to
// name an area, never a heading.
func (s *Structurer) matchAreaHeading(line string) (name, rest string, ok bool) {
	head := line
	tail := ""
	if i := strings.IndexAny(line, ":-"); i > 0 {
		head = line[:i]
		tail = strings.TrimSpace(line[i+1:])
	}
	head = strings.TrimSpace(head)
	if s.isFindingCandidate(head) {
		return "", "", false
	}
	lower := strings.ToLower(head)
	for _, p := range s.cfg.AreaPatterns {
		if strings.Contains(lower, p.Pattern) && len(lower) <= len(p.Pattern)+20 {
			return p.Canonical, tail, true
		}
	}
	return "", "", false
}

func (s *Structurer) canonicalArea(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range s.cfg.AreaPatterns {
		if strings.Contains(lower, p.Pattern) {
			return p.Canonical
		}
	}
	if lower == "" {
		return FallbackAreaName
	}
	return titleCase(lower)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (s *Structurer) isFindingCandidate(sent string) bool {
	lower := strings.ToLower(sent)
	for _, kw := range s.cfg.FindingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func splitSentences(line string) []string {
	parts := sentenceSplit.Split(line, -1)
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 3 {
			out = append(out, p)
		}
	}
	return out
}

type measColumn struct {
	name string
	unit string
}

// classifyColumns finds the description, area, and measurement columns by
// header heuristics. Returns descCol -1 when no description-like header
// exists, in which case the whole table is skipped.
func classifyColumns(headers []string) (descCol, areaCol int, measCols map[int]measColumn) {
	descCol, areaCol = -1, -1
	measCols = map[int]measColumn{}
	for i, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		switch {
		case descCol < 0 && containsAny(lower, "observation", "finding", "issue", "description", "remark", "negative side", "impacted"):
			descCol = i
		case areaCol < 0 && containsAny(lower, "area", "location", "room", "zone"):
			areaCol = i
		case containsAny(lower, "cold spot"):
			measCols[i] = measColumn{name: "cold_spot_temp", unit: "°C"}
		case containsAny(lower, "hot spot"):
			measCols[i] = measColumn{name: "hot_spot_temp", unit: "°C"}
		case containsAny(lower, "temp"):
			measCols[i] = measColumn{name: "temperature", unit: "°C"}
		case containsAny(lower, "moisture", "humidity"):
			measCols[i] = measColumn{name: "moisture", unit: "%"}
		case containsAny(lower, "crack width", "width"):
			measCols[i] = measColumn{name: "crack_width", unit: "mm"}
		}
	}
	return descCol, areaCol, measCols
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var firstNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseNumeric pulls the first number out of a table cell, tolerating units
// and annotations around it.
func parseNumeric(cell string) (float64, bool) {
	m := firstNumber.FindString(strings.TrimSpace(cell))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var numberWithUnit = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(%|°\s?c|deg\s?c|mm)`)

// extractMeasurements pulls quantitative readings out of free text. The
// measurement name is inferred from the unit plus nearby context words.
func extractMeasurements(text string) map[string]Measurement {
	lower := strings.ToLower(text)
	var meas map[string]Measurement
	for _, m := range numberWithUnit.FindAllStringSubmatch(lower, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		var name, unit string
		switch {
		case m[2] == "%":
			unit = "%"
			name = "moisture"
		case m[2] == "mm":
			unit = "mm"
			if strings.Contains(lower, "crack") {
				name = "crack_width"
			} else {
				name = "width"
			}
		default:
			unit = "°C"
			if strings.Contains(lower, "cold spot") || strings.Contains(lower, "cold zone") {
				name = "cold_spot_temp"
			} else if strings.Contains(lower, "hot spot") {
				name = "hot_spot_temp"
			} else {
				name = "temperature"
			}
		}
		if meas == nil {
			meas = map[string]Measurement{}
		}
		// First occurrence wins for a given name.
		if _, ok := meas[name]; !ok {
			meas[name] = Measurement{Value: v, Unit: unit}
		}
	}
	return meas
}

// assignFindingIDs numbers findings in area order so IDs are stable across
// runs with identical input.
func assignFindingIDs(areas []Area) {
	n := 0
	for ai := range areas {
		for fi := range areas[ai].Findings {
			n++
			areas[ai].Findings[fi].ID = fmt.Sprintf("F-%04d", n)
		}
	}
}
