package ddr

import (
	"fmt"
	"regexp"
	"strings"
)

var numericLiteral = regexp.MustCompile(`\d+(?:\.\d+)?`)

// factSet is the closed world a generated section may draw from: the facts
// text handed to the backend, every numeric literal in it, and the area
// names it mentions.
type factSet struct {
	text         string
	numbers      map[string]bool
	allowedAreas map[string]bool
	flaggedTerms []string
}

func newFactSet(factsText string, allowedAreas []string, flagged []string) factSet {
	fs := factSet{
		text:         factsText,
		numbers:      map[string]bool{},
		allowedAreas: map[string]bool{},
		flaggedTerms: flagged,
	}
	for _, n := range numericLiteral.FindAllString(factsText, -1) {
		fs.numbers[normalizeNumber(n)] = true
	}
	for _, a := range allowedAreas {
		fs.allowedAreas[strings.ToLower(a)] = true
	}
	return fs
}

// check re-scans generated text for assertions not traceable to the facts:
// numeric values absent from the fact block, area names outside the
// section's scope, and flagged technical terms the source never mentions.
// An empty return means the section is verifiable.
func (fs factSet) check(generated string, areaUniverse []string) []string {
	var violations []string

	for _, n := range numericLiteral.FindAllString(generated, -1) {
		if !fs.numbers[normalizeNumber(n)] {
			violations = append(violations, fmt.Sprintf("numeric value %q not present in supplied facts", n))
		}
	}

	lower := strings.ToLower(generated)
	for _, area := range areaUniverse {
		la := strings.ToLower(area)
		if fs.allowedAreas[la] || fs.insideAllowedArea(la) {
			continue
		}
		if containsWord(lower, la) {
			violations = append(violations, fmt.Sprintf("area %q not in scope for this section", area))
		}
	}

	factLower := strings.ToLower(fs.text)
	for _, term := range fs.flaggedTerms {
		lt := strings.ToLower(term)
		if strings.Contains(lower, lt) && !strings.Contains(factLower, lt) {
			violations = append(violations, fmt.Sprintf("term %q not present in supplied facts", term))
		}
	}

	return violations
}

// insideAllowedArea reports whether the area name occurs inside an allowed
// area's name, as "bathroom" does in "master bathroom". Any mention of such
// a name is indistinguishable from a mention of the allowed area, so it
// cannot be held against the text.
func (fs factSet) insideAllowedArea(la string) bool {
	for allowed := range fs.allowedAreas {
		if allowed != la && containsWord(allowed, la) {
			return true
		}
	}
	return false
}

// containsWord reports whether sub occurs in s bounded by non-word
// characters, so "hall" does not match inside "hallway".
func containsWord(s, sub string) bool {
	if sub == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return false
		}
		i += from
		before := i == 0 || !isWordChar(s[i-1])
		after := i+len(sub) == len(s) || !isWordChar(s[i+len(sub)])
		if before && after {
			return true
		}
		from = i + 1
	}
}

func isWordChar(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// normalizeNumber makes "42", "42.0" and "42.00" compare equal.
func normalizeNumber(n string) string {
	if strings.Contains(n, ".") {
		n = strings.TrimRight(n, "0")
		n = strings.TrimSuffix(n, ".")
	}
	return n
}
