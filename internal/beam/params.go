package beam

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Params is an immutable snapshot of the beam parameters. All derived
// quantities are recomputed from it on every call.
type Params struct {
	ZPosition   float64 // lens to sample distance, mm
	Focus       float64 // focal length, mm
	AstigmX     float64 // intrinsic astigmatism, mm of defocus
	AstigmY     float64
	StigmX      float64 // stigmator compensation, mm of defocus
	StigmY      float64
	MisalignX   float64 // intrinsic aperture misalignment, mm
	MisalignY   float64
	AlignX      float64 // aperture alignment, mm
	AlignY      float64
	BeamCurrent float64 // nA
	Convergence float64 // half-angle, rad
	PixelsPerMm float64
	KernelSize  int
}

// Viewport is the on-screen display the beam shift caps are calibrated
// against.
type Viewport struct {
	Width, Height int
}

// DefaultViewport is the 768x621 screen of the simulated console.
var DefaultViewport = Viewport{Width: 768, Height: 621}

// CapX returns the largest horizontal beam shift in pixels.
func (v Viewport) CapX() int { return v.Width / 8 }

// CapY returns the largest vertical beam shift in pixels.
func (v Viewport) CapY() int { return v.Height * 49 / 621 }

// Profile bundles everything the frame synthesizer needs from the beam for
// one tick.
type Profile struct {
	Kernel  *mat.Dense
	CenterX int
	CenterY int
	WidthX  float64 // nm
	WidthY  float64 // nm
}

// Validate reports whether the parameters can be fed to the model.
func (p Params) Validate() error {
	if !(p.Focus > 0) {
		return fmt.Errorf("%w: focus must be positive, got %g", ErrInvalidParameter, p.Focus)
	}
	if p.KernelSize <= 0 {
		return fmt.Errorf("%w: kernel size must be positive, got %d", ErrInvalidParameter, p.KernelSize)
	}
	if !(p.PixelsPerMm > 0) {
		return fmt.Errorf("%w: pixels per mm must be positive, got %g", ErrInvalidParameter, p.PixelsPerMm)
	}
	return nil
}

// Defocus returns focus minus working distance in mm.
func (p Params) Defocus() float64 {
	return p.Focus - p.ZPosition
}

// currentFloor is the variance floor contributed by the probe current. It
// keeps the spot from collapsing to zero width at exact focus.
func (p Params) currentFloor() float64 {
	c := 1 + 100*p.BeamCurrent
	return 1e-16 * c * c * c / 4
}

func (p Params) sigma2Mm(align, misalign, stigm, astigm float64) float64 {
	spread := (p.Defocus() + math.Abs(align-misalign)*1e-2 + math.Abs(stigm+astigm)) * p.Convergence
	return spread*spread + p.currentFloor()
}

// Sigma2Mm returns the Gaussian variance of the spot along x and y in mm².
func (p Params) Sigma2Mm() (x, y float64) {
	x = p.sigma2Mm(p.AlignX, p.MisalignX, p.StigmX, p.AstigmX)
	y = p.sigma2Mm(p.AlignY, p.MisalignY, p.StigmY, p.AstigmY)
	return x, y
}

// Sigma2Px returns the spot variance in square pixels.
func (p Params) Sigma2Px() (x, y float64) {
	x, y = p.Sigma2Mm()
	s := p.PixelsPerMm * p.PixelsPerMm
	return x * s, y * s
}

// AstigAngle returns the rotation of the elliptical spot in radians.
//
// When StigmY+AstigmY is exactly zero the angle is π/4 carrying the sign of
// the numerator, or 0 if the numerator is zero too (no astigmatism at all).
func (p Params) AstigAngle() float64 {
	num := p.StigmX + p.AstigmX
	den := p.StigmY + p.AstigmY
	if den == 0 {
		switch {
		case num > 0:
			return math.Pi / 4
		case num < 0:
			return -math.Pi / 4
		default:
			return 0
		}
	}
	return math.Atan(num/den) / 2
}

// Center returns the beam shift in pixels caused by the aperture being off
// axis, clamped to the viewport caps.
func (p Params) Center(v Viewport) (cx, cy int, err error) {
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	k := p.Defocus() / p.Focus * p.PixelsPerMm
	cx = clampShift((p.AlignX-p.MisalignX)*k, v.CapX())
	cy = clampShift((p.AlignY-p.MisalignY)*k, v.CapY())
	return cx, cy, nil
}

// clampShift truncates c toward zero and limits its magnitude. The clamp
// happens in floating point so huge shifts never hit int overflow.
func clampShift(c float64, limit int) int {
	if c >= float64(limit) {
		return limit
	}
	if c <= -float64(limit) {
		return -limit
	}
	return int(c)
}

// Widths returns the spot half-widths along x and y in nanometres.
func (p Params) Widths() (x, y float64) {
	sx, sy := p.Sigma2Mm()
	return 1e6 * math.Sqrt(sx), 1e6 * math.Sqrt(sy)
}

// Profile derives kernel, shift and widths in one call.
func (p Params) Profile(v Viewport) (Profile, error) {
	kernel, err := p.Kernel()
	if err != nil {
		return Profile{}, err
	}
	cx, cy, err := p.Center(v)
	if err != nil {
		return Profile{}, err
	}
	wx, wy := p.Widths()
	return Profile{
		Kernel:  kernel,
		CenterX: cx,
		CenterY: cy,
		WidthX:  wx,
		WidthY:  wy,
	}, nil
}

// Dump renders every parameter and the derived widths as key = value lines.
func (p Params) Dump() string {
	var sb strings.Builder
	p.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the Dump text to w.
func (p Params) WriteTo(w io.Writer) (int64, error) {
	wx, wy := p.Widths()
	lines := []struct {
		key string
		val any
	}{
		{"z_position", p.ZPosition},
		{"focus", p.Focus},
		{"astigm_x", p.AstigmX},
		{"astigm_y", p.AstigmY},
		{"stigm_x", p.StigmX},
		{"stigm_y", p.StigmY},
		{"misalign_x", p.MisalignX},
		{"misalign_y", p.MisalignY},
		{"align_x", p.AlignX},
		{"align_y", p.AlignY},
		{"beam_current", p.BeamCurrent},
		{"convergence", p.Convergence},
		{"pixels_per_mm", p.PixelsPerMm},
		{"size", p.KernelSize},
		{"beam_width_x_nm", wx},
		{"beam_width_y_nm", wy},
	}

	var total int64
	for _, l := range lines {
		n, err := fmt.Fprintf(w, "%s = %v\n", l.key, l.val)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
