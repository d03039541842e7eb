package spectral

import (
	"context"
	"math"
	"testing"
)

func sine(n, rate int, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
	}
	return out
}

func TestHamming(t *testing.T) {
	sizes := []int{128, 256, 400, 1024}

	for _, size := range sizes {
		w := Hamming(size)
		if len(w) != size {
			t.Errorf("Expected window size %d, got %d", size, len(w))
		}
		for i, val := range w {
			if val < 0 || val > 1 {
				t.Errorf("Window value %d out of range [0,1]: %f", i, val)
			}
		}
		if w[0] >= w[size/2] {
			t.Error("Hamming window should be lower at edges")
		}
	}
}

func TestMagnitudeSpectrum(t *testing.T) {
	spectrum := []complex128{
		complex(1.0, 0.0),
		complex(0.0, 1.0),
		complex(3.0, 4.0),
		complex(0.0, 1.0),
	}
	mag := MagnitudeSpectrum(spectrum)
	if len(mag) != 3 {
		t.Fatalf("Expected 3 bins, got %d", len(mag))
	}
	if mag[2] != 5.0 {
		t.Errorf("Expected magnitude 5.0, got %f", mag[2])
	}
}

func TestSTFTFrameCount(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{400, 1},
		{719, 1},
		{720, 2},
		{16000, 49},
	}
	w := Hamming(WindowSize)
	for _, tt := range tests {
		frames, err := STFT(make([]float64, tt.n), WindowSize, HopSize, 512, w)
		if err != nil {
			t.Fatalf("STFT(%d) failed: %v", tt.n, err)
		}
		if len(frames) != tt.want {
			t.Errorf("STFT(%d): expected %d frames, got %d", tt.n, tt.want, len(frames))
		}
	}

	if _, err := STFT(make([]float64, 10), WindowSize, HopSize, 512, w); err != ErrShortInput {
		t.Errorf("Expected ErrShortInput, got %v", err)
	}
}

func TestSTFTPeakBin(t *testing.T) {
	const rate, nfft = 16000, 512
	frames, err := STFT(sine(4000, rate, 1000), WindowSize, HopSize, nfft, Hamming(WindowSize))
	if err != nil {
		t.Fatalf("STFT failed: %v", err)
	}
	peak := 0
	for i, m := range frames[0] {
		if m > frames[0][peak] {
			peak = i
		}
	}
	want := 1000 * nfft / rate
	if peak < want-1 || peak > want+1 {
		t.Errorf("Expected peak near bin %d, got %d", want, peak)
	}
}

func TestBackbone(t *testing.T) {
	b := NewBackbone(16000, 64)
	if b.FrameHz() != 50 {
		t.Errorf("Expected 50 Hz frames, got %v", b.FrameHz())
	}

	seq, err := b.Embed(context.Background(), sine(16000, 16000, 440))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if seq.Len() != 49 || seq.Dim() != 64 {
		t.Errorf("Expected 49×64, got %s", seq)
	}
	for _, x := range seq.Data {
		if math.IsNaN(x) || x < 0 {
			t.Fatalf("Unexpected feature value %v", x)
		}
	}

	empty, err := b.Embed(context.Background(), make([]float64, 100))
	if err != nil {
		t.Fatalf("Embed on short input failed: %v", err)
	}
	if empty.Len() != 0 || empty.Dim() != 64 {
		t.Errorf("Expected 0×64, got %s", empty)
	}
}

func TestBandsMoreBandsThanBins(t *testing.T) {
	out := Bands([]float64{1, 3}, 4)
	if len(out) != 4 {
		t.Fatalf("Expected 4 bands, got %d", len(out))
	}
	if out[0] != math.Log1p(1) || out[3] != math.Log1p(3) {
		t.Errorf("Unexpected bands %v", out)
	}
}
