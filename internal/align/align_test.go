package align

import (
	"testing"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

func indexWindows(n int, win, hop float64) *models.AudioWindowSequence {
	s := models.NewSequence(n, 2)
	for i := 0; i < n; i++ {
		s.Row(i)[0] = float64(i)
		s.Row(i)[1] = 1
	}
	return &models.AudioWindowSequence{Sequence: s, WinSec: win, HopSec: hop}
}

func TestAlignExactRatio(t *testing.T) {
	const T = 6
	w := indexWindows(4*T, 2.0, 0.5)
	got := Align(w, T, 2.0)

	if got.Regime != Exact {
		t.Fatalf("Expected exact regime, got %s", got.Regime)
	}
	if got.Len() != T {
		t.Fatalf("Expected %d rows, got %d", T, got.Len())
	}
	for k := 0; k < T; k++ {
		want := float64(4*k) + 1.5 // mean of 4k..4k+3
		if got.At(k, 0) != want {
			t.Errorf("Row %d: expected %v, got %v", k, want, got.At(k, 0))
		}
	}
}

func TestAlignExactZeroFill(t *testing.T) {
	w := indexWindows(9, 2.0, 0.5) // covers rows 0,1 fully and row 2 with one window
	got := Align(w, 5, 2.0)

	if got.Len() != 5 {
		t.Fatalf("Expected 5 rows, got %d", got.Len())
	}
	if got.At(2, 0) != 8 || got.At(2, 1) != 1 {
		t.Errorf("Row 2 should average the single remaining window, got %v", got.Row(2))
	}
	for k := 3; k < 5; k++ {
		if got.At(k, 0) != 0 || got.At(k, 1) != 0 {
			t.Errorf("Row %d should be zero-filled, got %v", k, got.Row(k))
		}
	}
}

func TestAlignGeneralRegime(t *testing.T) {
	tests := []struct {
		name string
		n, t int
		hop  float64
	}{
		{"fewer windows than targets", 3, 10, 0.7},
		{"many windows", 100, 7, 0.3},
		{"single window", 1, 4, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := indexWindows(tt.n, 2.0, tt.hop)
			got := Align(w, tt.t, 2.0)
			if got.Regime != Nearest {
				t.Fatalf("Expected nearest regime, got %s", got.Regime)
			}
			if got.Len() != tt.t {
				t.Fatalf("Expected %d rows, got %d", tt.t, got.Len())
			}
			for k := 0; k < tt.t; k++ {
				idx := int(got.At(k, 0))
				if idx < 0 || idx > tt.n-1 {
					t.Errorf("Row %d maps to window %d outside [0,%d]", k, idx, tt.n-1)
				}
				if got.Sources[k][0] != idx {
					t.Errorf("Row %d: source %v disagrees with value %d", k, got.Sources[k], idx)
				}
			}
		})
	}
}

func TestNearestIndexLowerBound(t *testing.T) {
	// hop 0.7, win 2: centers 1.0, 1.7, 2.4, 3.1 ...
	w := indexWindows(10, 2.0, 0.7)
	tests := []struct {
		at   float64
		want int
	}{
		{0.2, 0},
		{1.0, 0},
		{1.01, 1},
		{3.0, 3},
		{99, 9},
	}
	for _, tt := range tests {
		if got := NearestIndex(w, tt.at); got != tt.want {
			t.Errorf("NearestIndex(%v): expected %d, got %d", tt.at, tt.want, got)
		}
	}
}

func TestAlignZeroTargets(t *testing.T) {
	got := Align(indexWindows(5, 2, 0.5), 0, 2)
	if got.Len() != 0 || got.Dim() != 2 {
		t.Errorf("Expected 0×2, got %s", got.Sequence)
	}
}

func TestBucket(t *testing.T) {
	frames := models.NewSequence(11, 2)
	for i := 0; i < 11; i++ {
		frames.Row(i)[0] = float64(i)
		frames.Row(i)[1] = 1
	}
	tests := []struct {
		block  int
		blocks int
		first  float64
	}{
		{8, 1, 3.5},
		{4, 2, 1.5},
		{12, 0, 0},
		{1, 11, 0},
	}
	for _, tt := range tests {
		out := Bucket(frames, tt.block)
		if out.Len() != tt.blocks {
			t.Errorf("block %d: expected %d blocks, got %d", tt.block, tt.blocks, out.Len())
			continue
		}
		if tt.blocks > 0 && (out.At(0, 0) != tt.first || out.At(0, 1) != 1) {
			t.Errorf("block %d: expected first row [%v 1], got %v", tt.block, tt.first, out.Row(0))
		}
	}
}
