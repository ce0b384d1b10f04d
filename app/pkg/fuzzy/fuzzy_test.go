package fuzzy

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "", 0},
		{"abc", "xyz", 0},
		{"urgent", "urgnt", 10.0 / 11.0},
		{"abcd", "bcde", 0.75},
	}
	for _, tc := range cases {
		got := Ratio(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Ratio(%q, %q) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMatchPicksBestCandidateAboveThreshold(t *testing.T) {
	// "urgant" scores 10/12 against "urgent" and 10/11 against "urgnt".
	got, ok := Match("  Urgant ", []string{"asap", "urgent", "urgnt"}, 0.7)
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "urgnt" {
		t.Fatalf("unexpected match: %s", got)
	}
}

func TestMatchKeepsEarliestOnTie(t *testing.T) {
	got, ok := Match("ab", []string{"ab", "AB"}, 0.5)
	if !ok || got != "ab" {
		t.Fatalf("expected earliest candidate, got %q ok=%v", got, ok)
	}
}

func TestMatchRejectsBelowThreshold(t *testing.T) {
	if got, ok := Match("buy flowers", []string{"low", "later"}, 0.7); ok {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestMatchEmptyCandidates(t *testing.T) {
	if _, ok := Match("anything", nil, 0); ok {
		t.Fatal("expected no match without candidates")
	}
}

func TestRatioProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.String().Draw(rt, "a")
		b := rapid.String().Draw(rt, "b")

		ab := Ratio(a, b)
		if ab < 0 || ab > 1 {
			rt.Fatalf("ratio out of range: %f", ab)
		}
		if a == b && ab != 1 {
			rt.Fatalf("identical strings should have ratio 1, got %f", ab)
		}
		if got := Ratio(a, a); got != 1 {
			rt.Fatalf("self ratio should be 1, got %f", got)
		}
	})
}
