package ddr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCorrelateRoofLeak(t *testing.T) {
	cfg := testConfig()
	c := NewCorrelator(&cfg)
	areas := []Area{
		{Name: "Roof", Findings: []Finding{mkFinding("F-0001", "Roof", "Missing shingles near the ridge", nil)}},
		{Name: "Attic", Findings: []Finding{mkFinding("F-0002", "Attic", "Water intrusion at the north corner", nil)}},
	}

	causes, err := c.Correlate(areas)
	if err != nil {
		t.Fatal(err)
	}
	var roof *RootCause
	for i := range causes {
		if causes[i].Label == "roof-leak" {
			roof = &causes[i]
		}
	}
	if roof == nil {
		t.Fatal("roof-leak should fire")
	}
	want := []string{"F-0001", "F-0002"}
	if diff := cmp.Diff(want, roof.FindingIDs); diff != "" {
		t.Errorf("finding IDs (-want +got):\n%s", diff)
	}
	if roof.Confidence <= 0 || roof.Confidence > 1 {
		t.Errorf("confidence %v out of range", roof.Confidence)
	}
}

func TestCorrelateCorroborationRaisesConfidence(t *testing.T) {
	cfg := testConfig()
	c := NewCorrelator(&cfg)

	single := []Area{
		{Name: "Roof", Findings: []Finding{mkFinding("F-0001", "Roof", "Missing shingles near the ridge", nil)}},
	}
	corroborated := []Area{
		{Name: "Roof", Findings: []Finding{mkFinding("F-0001", "Roof", "Missing shingles near the ridge", nil)}},
		{Name: "Attic", Findings: []Finding{mkFinding("F-0002", "Attic", "Water intrusion at the north corner", nil)}},
	}

	one, err := c.Correlate(single)
	if err != nil {
		t.Fatal(err)
	}
	two, err := c.Correlate(corroborated)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || len(two) != 1 {
		t.Fatalf("expected roof-leak in both, got %d and %d causes", len(one), len(two))
	}
	if two[0].Confidence <= one[0].Confidence {
		t.Errorf("corroborated confidence %v should exceed single-finding %v", two[0].Confidence, one[0].Confidence)
	}
}

func TestCorrelateMinConditionsGate(t *testing.T) {
	cfg := testConfig()
	c := NewCorrelator(&cfg)
	// tile-joint-seepage needs both conditions; only one holds here.
	areas := []Area{
		{Name: "Bathroom", Findings: []Finding{mkFinding("F-0001", "Bathroom", "Tile gap at floor level", nil)}},
	}
	causes, err := c.Correlate(areas)
	if err != nil {
		t.Fatal(err)
	}
	for _, rc := range causes {
		if rc.Label == "tile-joint-seepage" {
			t.Error("tile-joint-seepage should not fire with one of two conditions")
		}
	}
}

func TestCorrelateManyToManyAttribution(t *testing.T) {
	cfg := testConfig()
	c := NewCorrelator(&cfg)
	// One dampness finding feeds both tile-joint-seepage and
	// external-wall-ingress.
	areas := []Area{
		{Name: "Bathroom", Findings: []Finding{
			mkFinding("F-0001", "Bathroom", "Tile gap at floor level", nil),
			mkFinding("F-0002", "Bathroom", "Dampness on the south wall", nil),
		}},
		{Name: "External Walls", Findings: []Finding{
			mkFinding("F-0003", "External Walls", "Crack running along the parapet", nil),
		}},
	}
	causes, err := c.Correlate(areas)
	if err != nil {
		t.Fatal(err)
	}
	count := map[string]int{}
	for _, rc := range causes {
		for _, id := range rc.FindingIDs {
			count[id]++
		}
	}
	if count["F-0002"] < 2 {
		t.Errorf("dampness finding should contribute to at least 2 causes, got %d", count["F-0002"])
	}
}

func TestCorrelateMeasurementOnlyRule(t *testing.T) {
	cfg := testConfig()
	c := NewCorrelator(&cfg)
	areas := []Area{
		{Name: "Bedroom", Findings: []Finding{mkFinding("F-0001", "Bedroom", "Cold zone dampness behind wardrobe",
			map[string]Measurement{"cold_spot_temp": {Value: 20.5, Unit: "°C"}})}},
	}
	causes, err := c.Correlate(areas)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, rc := range causes {
		if rc.Label == "concealed-moisture" {
			found = true
		}
	}
	if !found {
		t.Error("concealed-moisture should fire on cold_spot_temp below bound")
	}
}

func TestCorrelateDeterministicOrdering(t *testing.T) {
	cfg := testConfig()
	c := NewCorrelator(&cfg)
	areas := []Area{
		{Name: "Bathroom", Findings: []Finding{
			mkFinding("F-0001", "Bathroom", "Tile gap at floor level", nil),
			mkFinding("F-0002", "Bathroom", "Dampness and efflorescence on wall", nil),
		}},
	}
	first, err := c.Correlate(areas)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := c.Correlate(areas)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].Confidence < first[i].Confidence {
			t.Errorf("causes not sorted by confidence: %v then %v", first[i-1].Confidence, first[i].Confidence)
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	cases := []struct {
		matched, total, corroborating int
	}{
		{1, 1, 1}, {1, 3, 1}, {3, 3, 5}, {2, 3, 2},
	}
	for _, tc := range cases {
		got := confidence(tc.matched, tc.total, tc.corroborating)
		if got <= 0 || got > 1 {
			t.Errorf("confidence(%d,%d,%d) = %v, want in (0,1]", tc.matched, tc.total, tc.corroborating, got)
		}
	}
	if confidence(3, 3, 2) <= confidence(1, 3, 2) {
		t.Error("more matched conditions must not lower confidence")
	}
	if confidence(2, 3, 4) <= confidence(2, 3, 1) {
		t.Error("more corroborating findings must not lower confidence")
	}
}
