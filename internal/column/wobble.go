package column

import "math"

// Wobble oscillates the focus around its setting so the operator can see
// whether the image shifts while it goes in and out of focus.
type Wobble struct {
	on        bool
	amplitude float64
	phase     float64
}

// Enabled reports whether the wobble is running.
func (w *Wobble) Enabled() bool { return w.on }

// Amplitude returns the focus swing in mm.
func (w *Wobble) Amplitude() float64 { return w.amplitude }

// SetAmplitude changes the swing without restarting the oscillation.
func (w *Wobble) SetAmplitude(mm float64) { w.amplitude = mm }

// Enable starts the oscillation from phase zero.
func (w *Wobble) Enable(amplitude float64) {
	w.on = true
	w.amplitude = amplitude
	w.phase = 0
}

// Disable stops the oscillation.
func (w *Wobble) Disable() {
	w.on = false
	w.phase = 0
}

// Step returns the focus for this wobble tick and advances the phase by one
// radian.
func (w *Wobble) Step(base float64) float64 {
	f := base + w.amplitude*math.Sin(w.phase)
	w.phase++
	return f
}
