package spectral

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Defaults give 25 ms windows and a 20 ms hop at 16 kHz, i.e. 50 frames/s.
const (
	WindowSize = 400
	HopSize    = 320
)

var ErrShortInput = errors.New("input shorter than window size")

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	return window.Hamming(n)
}

// MagnitudeSpectrum returns |X[k]| for k in [0, n/2], the non-redundant half
// of a real signal's spectrum.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	if half > len(spectrum) {
		half = len(spectrum)
	}
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes a time-major magnitude spectrogram: out[frame][bin].
// Frames are windowSize samples zero-padded to nfft before the FFT.
// Only full windows are emitted.
func STFT(samples []float64, windowSize, hopSize, nfft int, win []float64) ([][]float64, error) {
	if len(win) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if nfft < windowSize {
		nfft = windowSize
	}
	if len(samples) < windowSize {
		return nil, ErrShortInput
	}

	var spectrogram [][]float64
	frame := make([]float64, nfft)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := range frame {
			frame[i] = 0
		}
		for i := 0; i < windowSize; i++ {
			frame[i] = samples[start+i] * win[i]
		}
		spectrogram = append(spectrogram, MagnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spectrogram, nil
}

// Bands averages magnitude bins into n equal-width bands and applies log1p.
// When there are fewer bins than bands, bins are repeated.
func Bands(mag []float64, n int) []float64 {
	out := make([]float64, n)
	bins := len(mag)
	for b := 0; b < n; b++ {
		lo := b * bins / n
		hi := (b + 1) * bins / n
		if hi <= lo {
			hi = lo + 1
		}
		var s float64
		for _, m := range mag[lo:hi] {
			s += m
		}
		out[b] = math.Log1p(s / float64(hi-lo))
	}
	return out
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
