// Package beam models the electron beam of the simulated column and derives
// its point spread function from the optical parameters.
package beam

import (
	"errors"
	"math/rand"
)

// Default values for a freshly constructed beam. Focus is in mm, current in
// nA, convergence in radians. The scale corresponds to a 256 px wide frame at
// 100x on a 57.15 mm screen.
const (
	DefaultFocus       = 0.1
	DefaultBeamCurrent = 1.0
	DefaultConvergence = 0.01
	DefaultKernelSize  = 64
	DefaultPixelsPerMm = 256 / 57.15 * 100
)

// ErrInvalidParameter is returned when a parameter that the beam model
// divides by or sizes a grid with is out of range.
var ErrInvalidParameter = errors.New("invalid beam parameter")

// Beam holds the parameters of one electron column. The intrinsic column
// defects (working distance, astigmatism, aperture misalignment) are drawn
// once at construction and cannot be changed afterwards; a new sample gets a
// new Beam.
type Beam struct {
	zPosition            float64
	astigmX, astigmY     float64
	misalignX, misalignY float64

	focus          float64
	stigmX, stigmY float64
	alignX, alignY float64
	beamCurrent    float64
	convergence    float64
	pixelsPerMm    float64
	kernelSize     int
}

// New creates a beam whose intrinsic defects are drawn from rng.
func New(rng *rand.Rand) *Beam {
	return &Beam{
		zPosition: 5 + 10*rng.Float64(),
		astigmX:   rng.Float64() - 0.5,
		astigmY:   rng.Float64() - 0.5,
		misalignX: 0.4*rng.Float64() - 0.2,
		misalignY: 0.4*rng.Float64() - 0.2,

		focus:       DefaultFocus,
		beamCurrent: DefaultBeamCurrent,
		convergence: DefaultConvergence,
		pixelsPerMm: DefaultPixelsPerMm,
		kernelSize:  DefaultKernelSize,
	}
}

// NewSeeded creates a beam with reproducible intrinsic defects.
func NewSeeded(seed int64) *Beam {
	return New(rand.New(rand.NewSource(seed)))
}

// Params returns a snapshot of the current parameters.
func (b *Beam) Params() Params {
	return Params{
		ZPosition:   b.zPosition,
		Focus:       b.focus,
		AstigmX:     b.astigmX,
		AstigmY:     b.astigmY,
		StigmX:      b.stigmX,
		StigmY:      b.stigmY,
		MisalignX:   b.misalignX,
		MisalignY:   b.misalignY,
		AlignX:      b.alignX,
		AlignY:      b.alignY,
		BeamCurrent: b.beamCurrent,
		Convergence: b.convergence,
		PixelsPerMm: b.pixelsPerMm,
		KernelSize:  b.kernelSize,
	}
}

// Focus returns the lens focal length in mm.
func (b *Beam) Focus() float64 { return b.focus }

// SetFocus sets the lens focal length in mm.
func (b *Beam) SetFocus(mm float64) { b.focus = mm }

// SetStigmator sets the astigmatism compensation in mm of defocus.
func (b *Beam) SetStigmator(x, y float64) {
	b.stigmX = x
	b.stigmY = y
}

// SetStigmatorX sets the x stigmator only.
func (b *Beam) SetStigmatorX(x float64) { b.stigmX = x }

// SetStigmatorY sets the y stigmator only.
func (b *Beam) SetStigmatorY(y float64) { b.stigmY = y }

// SetAlignment sets the aperture alignment in mm.
func (b *Beam) SetAlignment(x, y float64) {
	b.alignX = x
	b.alignY = y
}

// SetAlignmentX sets the x aperture alignment only.
func (b *Beam) SetAlignmentX(x float64) { b.alignX = x }

// SetAlignmentY sets the y aperture alignment only.
func (b *Beam) SetAlignmentY(y float64) { b.alignY = y }

// BeamCurrent returns the probe current in nA.
func (b *Beam) BeamCurrent() float64 { return b.beamCurrent }

// SetBeamCurrent sets the probe current in nA.
func (b *Beam) SetBeamCurrent(nA float64) { b.beamCurrent = nA }

// SetConvergence sets the convergence half-angle in radians.
func (b *Beam) SetConvergence(rad float64) { b.convergence = rad }

// SetPixelsPerMm sets the sample-plane scale.
func (b *Beam) SetPixelsPerMm(ppm float64) { b.pixelsPerMm = ppm }

// SetKernelSize sets the side of the square kernel in pixels.
func (b *Beam) SetKernelSize(size int) { b.kernelSize = size }
