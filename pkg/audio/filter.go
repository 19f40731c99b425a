package audio

import (
	"math"

	"github.com/gopxl/beep/v2"
)

type passKind int

const (
	lowPass passKind = iota
	highPass
)

// biquad is a second-order IIR section with coefficients pre-divided by a0.
type biquad struct {
	in             beep.Streamer
	b0, b1, b2     float64
	a1, a2         float64
	x1, x2, y1, y2 [2]float64
}

func newBiquad(in beep.Streamer, kind passKind, sampleRate, cutoff, q float64) *biquad {
	omega := 2 * math.Pi * cutoff / sampleRate
	cs := math.Cos(omega)
	alpha := math.Sin(omega) / (2 * q)
	a0 := 1 + alpha

	f := &biquad{in: in}
	switch kind {
	case lowPass:
		f.b0 = (1 - cs) / 2
		f.b1 = 1 - cs
	case highPass:
		f.b0 = (1 + cs) / 2
		f.b1 = -(1 + cs)
	}
	f.b2 = f.b0
	f.b0 /= a0
	f.b1 /= a0
	f.b2 /= a0
	f.a1 = -2 * cs / a0
	f.a2 = (1 - alpha) / a0
	return f
}

func (f *biquad) Stream(samples [][2]float64) (int, bool) {
	n, ok := f.in.Stream(samples)
	for i := 0; i < n; i++ {
		for ch := 0; ch < 2; ch++ {
			x := samples[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch], f.x1[ch] = f.x1[ch], x
			f.y2[ch], f.y1[ch] = f.y1[ch], y
			samples[i][ch] = y
		}
	}
	return n, ok
}

func (f *biquad) Err() error { return f.in.Err() }

// NewSpeechFilter band-limits s to [low, high] Hz with a Butterworth
// high-pass followed by a low-pass.
func NewSpeechFilter(s beep.Streamer, sampleRate, low, high float64) beep.Streamer {
	const q = 0.707
	return newBiquad(newBiquad(s, highPass, sampleRate, low, q), lowPass, sampleRate, high, q)
}
