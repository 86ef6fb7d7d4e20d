package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/san-kum/seesaw/internal/sampling"
)

// Interval returns the sample spacing in seconds, or 0 if it cannot be told.
func Interval(samples []sampling.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	span := samples[len(samples)-1].OffsetMs - samples[0].OffsetMs
	return float64(span) / float64(len(samples)-1) / 1000
}

// Spectrum returns the one-sided amplitude spectrum of the error with its
// mean removed, and the frequency resolution in Hz.
func Spectrum(samples []sampling.Sample) ([]float64, float64) {
	dt := Interval(samples)
	if dt == 0 {
		return nil, 0
	}

	n := len(samples)
	mean := 0.0
	for _, s := range samples {
		mean += s.Error
	}
	mean /= float64(n)

	data := make([]float64, n)
	for i, s := range samples {
		data[i] = s.Error - mean
	}

	spectrum := fft.FFTReal(data)
	amp := make([]float64, n/2+1)
	for i := range amp {
		amp[i] = cmplx.Abs(spectrum[i]) / float64(n)
	}
	return amp, 1 / (dt * float64(n))
}

// DominantFrequency returns the frequency in Hz and amplitude of the
// strongest non-DC component of the error.
func DominantFrequency(samples []sampling.Sample) (float64, float64) {
	amp, df := Spectrum(samples)
	best, bestAmp := 0, 0.0
	for i := 1; i < len(amp); i++ {
		if amp[i] > bestAmp {
			best, bestAmp = i, amp[i]
		}
	}
	if best == 0 {
		return 0, 0
	}
	return float64(best) * df, bestAmp
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
