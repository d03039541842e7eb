package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

var ErrInvalidWAV = errors.New("not a valid WAV file")

// Waveform is mono audio normalized to [-1, 1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// ReadWAV decodes a PCM WAV file and downmixes it to mono by averaging
// channels.
func ReadWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: "audio"}
		}
		return nil, fmt.Errorf("failed to open WAV: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode PCM: %w", err)
	}
	return toMono(buf), nil
}

func toMono(buf *goaudio.IntBuffer) *Waveform {
	channels := 1
	rate := 0
	if buf.Format != nil {
		channels = max(buf.Format.NumChannels, 1)
		rate = buf.Format.SampleRate
	}
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	scale := 1 / math.Pow(2, float64(depth-1))

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var s float64
		for c := 0; c < channels; c++ {
			s += float64(buf.Data[i*channels+c])
		}
		out[i] = s / float64(channels) * scale
	}
	return &Waveform{Samples: out, SampleRate: rate}
}

// Resample converts w to rate with a high-quality polyphase resampler.
// It is a no-op when the rates already match.
func Resample(w *Waveform, rate int) (*Waveform, error) {
	if w.SampleRate == rate || len(w.Samples) == 0 {
		return &Waveform{Samples: w.Samples, SampleRate: rate}, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	out, err := r.Process(w.Samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	return &Waveform{Samples: out, SampleRate: rate}, nil
}

// Loader turns any supported audio file into a mono waveform at SampleRate.
// WAV is decoded in process; other formats go through ffmpeg first.
type Loader struct {
	SampleRate int
	TempDir    string
}

func (l Loader) Load(ctx context.Context, path string) (*Waveform, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &models.MissingInputError{Path: path, Stage: "audio"}
		}
		return nil, err
	}

	wavPath := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		tmp := l.TempDir
		if tmp == "" {
			tmp = os.TempDir()
		}
		converted, err := Transcoder{SampleRate: l.SampleRate}.ToWAV(ctx, path, tmp)
		if err != nil {
			return nil, fmt.Errorf("audio conversion failed: %w", err)
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	w, err := ReadWAV(wavPath)
	if err != nil {
		return nil, err
	}
	return Resample(w, l.SampleRate)
}

// WriteWAV writes mono samples in [-1, 1] as 16-bit PCM.
func WriteWAV(path string, w *Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, 1)
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode WAV: %w", err)
	}
	return enc.Close()
}
