package outline

import (
	"math"
	"testing"
)

func TestAnchorLineClamps(t *testing.T) {
	cases := map[float64]float64{
		0:    AnchorMin + AnchorHysteresis,
		700:  70 + AnchorHysteresis,
		2000: AnchorMax + AnchorHysteresis,
	}
	for height, want := range cases {
		if got := AnchorLine(height); got != want {
			t.Fatalf("AnchorLine(%v) = %v, want %v", height, got, want)
		}
	}
}

func TestComputeActiveLastScrolledPast(t *testing.T) {
	positions := []Position{
		{ID: TitleID, Top: math.Inf(-1)},
		{ID: "heading-0", Top: -300},
		{ID: "heading-1", Top: 40},
		{ID: "heading-2", Top: 200},
	}
	got, ok := ComputeActive(positions, "", 700)
	if !ok || got != "heading-1" {
		t.Fatalf("expected heading-1, got %q", got)
	}
	// The anchor sits at 76 for a 700px viewport: 70 plus the hysteresis band.
	positions[3].Top = 80
	got, _ = ComputeActive(positions, "", 700)
	if got != "heading-1" {
		t.Fatalf("expected heading-1 while heading-2 is below the anchor, got %q", got)
	}
	positions[3].Top = 74
	got, _ = ComputeActive(positions, "", 700)
	if got != "heading-2" {
		t.Fatalf("expected hysteresis band to activate heading-2, got %q", got)
	}
}

func TestComputeActiveFallsBackToFirst(t *testing.T) {
	positions := []Position{{ID: "heading-0", Top: 300}, {ID: "heading-1", Top: 600}}
	got, ok := ComputeActive(positions, "", 700)
	if !ok || got != "heading-0" {
		t.Fatalf("expected first heading, got %q", got)
	}
}

func TestComputeActiveSelectionWins(t *testing.T) {
	positions := []Position{{ID: TitleID, Top: math.Inf(-1)}, {ID: "heading-0", Top: -100}, {ID: "heading-1", Top: 500}}
	got, _ := ComputeActive(positions, "heading-1", 700)
	if got != "heading-1" {
		t.Fatalf("expected selection to win, got %q", got)
	}
}

func TestComputeActiveEmpty(t *testing.T) {
	if _, ok := ComputeActive(nil, "", 700); ok {
		t.Fatalf("expected no active entry")
	}
}
