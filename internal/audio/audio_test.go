package audio

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

// frameBackbone emits one frame per hop samples (full hops only); the frame
// value is the absolute sample index it starts at, so stitching is checkable.
type frameBackbone struct {
	rate, hop, dim int
	calls          int
}

func newFrameBackbone(rate, hop, dim int) *frameBackbone {
	return &frameBackbone{rate: rate, hop: hop, dim: dim}
}

func (b *frameBackbone) Name() string { return "frames" }
func (b *frameBackbone) SampleRate() int { return b.rate }
func (b *frameBackbone) FrameHz() float64 { return float64(b.rate) / float64(b.hop) }
func (b *frameBackbone) FeatureDim() int { return b.dim }

func (b *frameBackbone) Embed(_ context.Context, samples []float64) (*models.Sequence, error) {
	b.calls++
	n := len(samples) / b.hop
	out := models.NewSequence(n, b.dim)
	for i := 0; i < n; i++ {
		for j := 0; j < b.dim; j++ {
			out.Row(i)[j] = samples[i*b.hop]
		}
	}
	return out, nil
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestExtractEmpty(t *testing.T) {
	b := newFrameBackbone(100, 10, 3)
	e, err := NewExtractor(b, 2, 0.5, nil)
	if err != nil {
		t.Fatal(err)
	}
	seq, err := e.Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if seq.Len() != 0 || seq.Dim() != 3 {
		t.Errorf("Expected 0×3, got %s", seq)
	}
	if b.calls != 0 {
		t.Errorf("Backbone should not be called on empty input, got %d calls", b.calls)
	}
}

func TestExtractOverlapDedup(t *testing.T) {
	tests := []struct {
		name       string
		samples    int
		chunkSec   float64
		overlapSec float64
	}{
		{"exact multiple", 1000, 2, 0.5},
		{"ragged tail", 1234, 2, 0.5},
		{"single chunk", 150, 2, 0.5},
		{"large overlap", 2000, 3, 1.2},
		{"tail just past overlap", 201, 2, 0.5},
		{"tail within one drop", 240, 2, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFrameBackbone(100, 10, 1)
			e, err := NewExtractor(b, tt.chunkSec, tt.overlapSec, nil)
			if err != nil {
				t.Fatal(err)
			}
			wave := ramp(tt.samples)
			chunked, err := e.Extract(context.Background(), wave)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			single, err := b.Embed(context.Background(), wave)
			if err != nil {
				t.Fatal(err)
			}
			if chunked.Len() > single.Len()+1 {
				t.Errorf("Chunked extraction has %d frames, single pass %d", chunked.Len(), single.Len())
			}
			for i := 1; i < chunked.Len(); i++ {
				if chunked.At(i, 0) <= chunked.At(i-1, 0) {
					t.Fatalf("Frame %d repeats or precedes frame %d: %v then %v", i, i-1, chunked.At(i-1, 0), chunked.At(i, 0))
				}
			}
		})
	}
}

func TestExtractDropsOverlapOnlyTail(t *testing.T) {
	// chunk 200 samples, step 150: the tail [150,201) yields 5 frames, all overlap.
	b := newFrameBackbone(100, 10, 1)
	e, _ := NewExtractor(b, 2, 0.5, nil)
	seq, err := e.Extract(context.Background(), ramp(201))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if seq.Len() != 20 {
		t.Errorf("Expected 20 frames, got %d", seq.Len())
	}
}

func TestExtractStitchOrder(t *testing.T) {
	// chunk 200 samples, step 150, drop round(0.5*10)=5 frames.
	b := newFrameBackbone(100, 10, 1)
	e, _ := NewExtractor(b, 2, 0.5, nil)
	seq, err := e.Extract(context.Background(), ramp(500))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if e.DropFrames() != 5 {
		t.Fatalf("Expected drop 5, got %d", e.DropFrames())
	}
	// chunks: [0,200) 20 frames, [150,350) 20-5, [300,500) 20-5, end reached.
	if seq.Len() != 50 {
		t.Fatalf("Expected 50 frames, got %d", seq.Len())
	}
	for i := 1; i < seq.Len(); i++ {
		if seq.At(i, 0) <= seq.At(i-1, 0) {
			t.Fatalf("Frames out of order at %d: %v then %v", i, seq.At(i-1, 0), seq.At(i, 0))
		}
	}
	if seq.At(20, 0) != 200 {
		t.Errorf("Expected first kept frame of chunk 2 to start at sample 200, got %v", seq.At(20, 0))
	}
}

func TestExtractStopsOnEmptyChunk(t *testing.T) {
	// 60-sample frames: chunk 200, step 150, drop round(0.5*100/60)=1.
	// The chunk at 450 holds 55 samples, yields no frame and ends extraction.
	b := newFrameBackbone(100, 60, 1)
	e, _ := NewExtractor(b, 2, 0.5, nil)
	seq, err := e.Extract(context.Background(), ramp(505))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if b.calls != 4 {
		t.Errorf("Expected 4 backbone calls, got %d", b.calls)
	}
	if seq.Len() != 7 {
		t.Errorf("Expected 7 frames, got %d", seq.Len())
	}
}

func TestNewExtractorRejectsBadChunking(t *testing.T) {
	if _, err := NewExtractor(newFrameBackbone(100, 10, 1), 1, 1, nil); err == nil {
		t.Error("Expected error when overlap equals chunk")
	}
}

func TestPoolCount(t *testing.T) {
	const frameHz = 2.0 // win=4 frames, hop=2 frames
	for L := 0; L <= 15; L++ {
		frames := models.NewSequence(L, 3)
		got := Pool(frames, frameHz, 2, 1)
		want := 0
		if L >= 4 {
			want = 1 + (L-4)/2
		}
		if got.Len() != want {
			t.Errorf("L=%d: expected %d windows, got %d", L, want, got.Len())
		}
		if got.Dim() != 3 {
			t.Errorf("L=%d: expected dim 3, got %d", L, got.Dim())
		}
	}
}

func TestPoolMeans(t *testing.T) {
	frames, _ := models.SequenceFromRows([][]float64{{0}, {1}, {2}, {3}, {4}, {5}})
	got := Pool(frames, 1, 4, 2)
	if got.Len() != 2 {
		t.Fatalf("Expected 2 windows, got %d", got.Len())
	}
	if got.At(0, 0) != 1.5 || got.At(1, 0) != 3.5 {
		t.Errorf("Unexpected window means %v", got.Data)
	}
	if got.Center(1) != 4 {
		t.Errorf("Expected center 4s, got %v", got.Center(1))
	}
}

func TestZScore(t *testing.T) {
	s, _ := models.SequenceFromRows([][]float64{{1, 7}, {2, 7}, {3, 7}})
	ZScore(s)
	if math.Abs(s.At(0, 0)+1) > 1e-5 || math.Abs(s.At(2, 0)-1) > 1e-5 {
		t.Errorf("Expected ±1, got %v", s.Data)
	}
	if s.At(1, 1) != 0 {
		t.Errorf("Constant column should be 0, got %v", s.At(1, 1))
	}
}

func TestZScoreSampleStd(t *testing.T) {
	tests := []struct {
		name string
		col  []float64
		want []float64
	}{
		// mean 5, sample std sqrt(32/7)
		{"sample std", []float64{2, 4, 4, 4, 5, 5, 7, 9}, nil},
		{"single row", []float64{3}, []float64{0}},
		{"two rows", []float64{1, 3}, []float64{-1 / math.Sqrt2, 1 / math.Sqrt2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := make([][]float64, len(tt.col))
			for i, x := range tt.col {
				rows[i] = []float64{x}
			}
			s, _ := models.SequenceFromRows(rows)
			ZScore(s)
			want := tt.want
			if want == nil {
				std := math.Sqrt(32.0 / 7)
				for _, x := range tt.col {
					want = append(want, (x-5)/std)
				}
			}
			for i, w := range want {
				if got := s.At(i, 0); math.Abs(got-w) > 1e-5 {
					t.Errorf("Row %d: expected %v, got %v", i, w, got)
				}
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	w := &Waveform{SampleRate: 8000, Samples: make([]float64, 800)}
	for i := range w.Samples {
		w.Samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/8000)
	}
	if err := WriteWAV(path, w); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if got.SampleRate != 8000 || len(got.Samples) != 800 {
		t.Fatalf("Expected 800 samples at 8000 Hz, got %d at %d", len(got.Samples), got.SampleRate)
	}
	for i := range got.Samples {
		if math.Abs(got.Samples[i]-w.Samples[i]) > 1e-3 {
			t.Fatalf("Sample %d: expected %v, got %v", i, w.Samples[i], got.Samples[i])
		}
	}
	if got.Duration() != 0.1 {
		t.Errorf("Expected duration 0.1s, got %v", got.Duration())
	}
}

func TestReadWAVInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("INVALID HEADER DATA"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAV(path); !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("Expected ErrInvalidWAV, got %v", err)
	}
	if _, err := ReadWAV(filepath.Join(t.TempDir(), "none.wav")); !errors.Is(err, models.ErrMissingInput) {
		t.Errorf("Expected missing input, got %v", err)
	}
}

func TestLoaderResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteWAV(path, &Waveform{SampleRate: 32000, Samples: make([]float64, 32000)}); err != nil {
		t.Fatal(err)
	}
	w, err := Loader{SampleRate: 16000}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if w.SampleRate != 16000 {
		t.Errorf("Expected 16000 Hz, got %d", w.SampleRate)
	}
	if d := w.Duration(); d < 0.9 || d > 1.1 {
		t.Errorf("Expected ~1s after resampling, got %vs", d)
	}
}

func TestLoaderConvertsNonWAV(t *testing.T) {
	tc := Transcoder{SampleRate: 16000}
	if !tc.Available() {
		t.Skipf("ffmpeg not installed")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.wav")
	if err := WriteWAV(src, &Waveform{SampleRate: 16000, Samples: make([]float64, 16000)}); err != nil {
		t.Fatal(err)
	}
	out, err := tc.ToWAV(context.Background(), src, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ToWAV failed: %v", err)
	}
	if filepath.Ext(out) != ".wav" {
		t.Errorf("Expected .wav output, got %s", out)
	}
}

func TestTranscoderMissingBinary(t *testing.T) {
	tc := Transcoder{Binary: "definitely-not-ffmpeg"}
	if tc.Available() {
		t.Skipf("unexpected binary on PATH")
	}
	if _, err := tc.ToWAV(context.Background(), "in.mp3", t.TempDir()); err == nil {
		t.Error("Expected error for missing binary")
	}
}

func TestRemoteBackbone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := len(req.Samples) / 320
		frames := make([][]float64, n)
		for i := range frames {
			frames[i] = []float64{float64(i), 1, 2}
		}
		json.NewEncoder(w).Encode(embedResp{Frames: frames, Dim: 3})
	}))
	defer srv.Close()

	b := NewRemoteBackbone(srv.URL, "facebook/wav2vec2-base-960h", 16000, 50, 3)
	seq, err := b.Embed(context.Background(), make([]float64, 16000))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if seq.Len() != 50 || seq.Dim() != 3 {
		t.Errorf("Expected 50×3, got %s", seq)
	}

	wrong := NewRemoteBackbone(srv.URL, "x", 16000, 50, 4)
	if _, err := wrong.Embed(context.Background(), make([]float64, 640)); !errors.Is(err, models.ErrShape) {
		t.Errorf("Expected shape error, got %v", err)
	}
}

func TestRemoteBackboneHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewRemoteBackbone(srv.URL, "x", 16000, 50, 3)
	if _, err := b.Embed(context.Background(), make([]float64, 100)); err == nil {
		t.Error("Expected error on 503")
	}
}
