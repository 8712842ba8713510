package ddr

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Embedder is the optional semantic backend for the deduplication stage.
// Absence or failure is a degraded mode, never a run failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deduplicator collapses near-duplicate findings within and across areas.
// The rule-based pass is dependency-free; the semantic pass runs only when
// an Embedder is configured and reachable.
type Deduplicator struct {
	cfg      *Config
	embedder Embedder
}

func NewDeduplicator(cfg *Config, embedder Embedder) *Deduplicator {
	return &Deduplicator{cfg: cfg, embedder: embedder}
}

type dedupResult struct {
	Areas           []Area
	Groups          []DuplicateGroup
	SemanticSkipped bool
}

// Deduplicate returns new Areas retaining only canonical findings, plus the
// full duplicate-group partition for audit. Running it again on its own
// output merges nothing further.
func (d *Deduplicator) Deduplicate(ctx context.Context, areas []Area) (dedupResult, error) {
	findings := flatten(areas)
	uf := newUnionFind(len(findings))
	sims := make([]float64, len(findings))

	norm := make([][]string, len(findings))
	for i, f := range findings {
		norm[i] = d.normalizeTokens(f.Description)
	}

	for i := 0; i < len(findings); i++ {
		for j := i + 1; j < len(findings); j++ {
			sim := jaccard(norm[i], norm[j])
			if sim < d.cfg.Dedup.JaccardThreshold {
				continue
			}
			if findings[i].Area != findings[j].Area &&
				!shareMeasurement(findings[i], findings[j], d.cfg.Dedup.MeasurementTolerance) {
				continue
			}
			uf.union(i, j)
			recordSim(sims, i, j, sim)
		}
	}

	semanticSkipped := false
	if d.embedder != nil {
		if err := d.semanticPass(ctx, findings, uf, sims); err != nil {
			semanticSkipped = true
		}
	} else {
		semanticSkipped = true
	}

	groups := d.buildGroups(findings, uf, sims)
	out := retainCanonical(areas, groups)
	return dedupResult{Areas: out, Groups: groups, SemanticSkipped: semanticSkipped}, nil
}

func (d *Deduplicator) semanticPass(ctx context.Context, findings []Finding, uf *unionFind, sims []float64) error {
	vecs := make([][]float32, len(findings))
	for i, f := range findings {
		v, err := d.embedder.Embed(ctx, f.Description)
		if err != nil {
			return err
		}
		vecs[i] = v
	}
	for i := 0; i < len(findings); i++ {
		for j := i + 1; j < len(findings); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			sim := cosine(vecs[i], vecs[j])
			if sim >= d.cfg.Dedup.SemanticThreshold {
				uf.union(i, j)
				recordSim(sims, i, j, sim)
			}
		}
	}
	return nil
}

// buildGroups converts union-find components into DuplicateGroups. Every
// finding lands in exactly one group of size >= 1.
func (d *Deduplicator) buildGroups(findings []Finding, uf *unionFind, sims []float64) []DuplicateGroup {
	comps := map[int][]int{}
	for i := range findings {
		root := uf.find(i)
		comps[root] = append(comps[root], i)
	}

	groups := make([]DuplicateGroup, 0, len(comps))
	for _, idxs := range comps {
		sort.Ints(idxs)
		canon := idxs[0]
		for _, i := range idxs[1:] {
			if d.preferCanonical(findings[i], findings[canon]) {
				canon = i
			}
		}
		g := DuplicateGroup{CanonicalID: findings[canon].ID}
		for _, i := range idxs {
			sim := sims[i]
			if i == canon {
				sim = 1
			}
			g.Members = append(g.Members, GroupMember{FindingID: findings[i].ID, Similarity: round2(sim)})
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Members[0].FindingID < groups[j].Members[0].FindingID })
	return groups
}

// preferCanonical reports whether a should replace b as the group
// canonical: most measurements, then longest description, then (optionally)
// table provenance, then lowest ID.
func (d *Deduplicator) preferCanonical(a, b Finding) bool {
	if len(a.Measurements) != len(b.Measurements) {
		return len(a.Measurements) > len(b.Measurements)
	}
	if len(a.Description) != len(b.Description) {
		return len(a.Description) > len(b.Description)
	}
	if d.cfg.Dedup.PreferTableProvenance && a.Provenance != b.Provenance {
		return a.Provenance == ProvenanceTable
	}
	return a.ID < b.ID
}

func retainCanonical(areas []Area, groups []DuplicateGroup) []Area {
	canonical := map[string]bool{}
	for _, g := range groups {
		canonical[g.CanonicalID] = true
	}
	out := make([]Area, 0, len(areas))
	for _, a := range areas {
		kept := Area{Name: a.Name}
		for _, f := range a.Findings {
			if canonical[f.ID] {
				kept.Findings = append(kept.Findings, f.Clone())
			}
		}
		if len(kept.Findings) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// normalizeTokens case-folds, strips punctuation and filler words, stems
// inflection suffixes, and collapses whitespace into a sorted unique token
// list.
func (d *Deduplicator) normalizeTokens(text string) []string {
	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, " ")
	seen := map[string]bool{}
	var tokens []string
	for _, tok := range strings.Fields(text) {
		if d.isFiller(tok) {
			continue
		}
		tok = stemToken(tok)
		if seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// stemToken strips common inflection suffixes so rephrasings like "stain"
// and "staining" compare equal. Tokens that would shrink below four
// characters are left alone.
func stemToken(tok string) string {
	for _, suf := range []string{"ing", "ed", "es", "s"} {
		if strings.HasSuffix(tok, suf) && len(tok)-len(suf) >= 4 {
			return tok[:len(tok)-len(suf)]
		}
	}
	return tok
}

func (d *Deduplicator) isFiller(tok string) bool {
	for _, f := range d.cfg.Dedup.FillerWords {
		if tok == f {
			return true
		}
	}
	return false
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := map[string]bool{}
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	for _, t := range b {
		if set[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// shareMeasurement reports whether two findings carry a same-named
// measurement whose values agree within the relative tolerance.
func shareMeasurement(a, b Finding, tol float64) bool {
	for name, ma := range a.Measurements {
		mb, ok := b.Measurements[name]
		if !ok {
			continue
		}
		scale := math.Max(math.Abs(ma.Value), math.Abs(mb.Value))
		if scale == 0 {
			return true
		}
		if math.Abs(ma.Value-mb.Value)/scale <= tol {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func recordSim(sims []float64, i, j int, sim float64) {
	if sim > sims[i] {
		sims[i] = sim
	}
	if sim > sims[j] {
		sims[j] = sim
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func flatten(areas []Area) []Finding {
	var out []Finding
	for _, a := range areas {
		out = append(out, a.Findings...)
	}
	return out
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	// Lower root wins so components stay deterministic.
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}
