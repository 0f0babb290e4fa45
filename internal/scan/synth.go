package scan

import (
	"math"
	"math/rand"

	"sem-simulator/internal/beam"
	"sem-simulator/internal/imaging"

	"gonum.org/v1/gonum/mat"
)

// Reference window geometry, in reference image pixels. The window is
// sampled with a step of nativeWidth/displayWidth, so a 512 px wide display
// maps one to one onto the reference.
const (
	windowOriginX = 256
	windowOriginY = 192
	windowWidth   = 640
	windowHeight  = 512
	nativeWidth   = 512
)

// Display transfer constants.
const (
	contrastScale    = 30.0
	brightnessOffset = 250.0
	noiseAmplitude   = 10.0
)

// ReferenceProvider supplies the reference image for a detector and
// magnification.
type ReferenceProvider interface {
	Reference(detector string, mag int) (*imaging.Gray, error)
}

var _ ReferenceProvider = (*imaging.Library)(nil)

// Inputs is everything besides scan position that shapes one slice.
type Inputs struct {
	Profile     beam.Profile
	Speed       int
	BeamCurrent float64
	Contrast    float64
	Brightness  float64
	BeamOn      bool
	HVRatio     float64
}

// gain returns the factor applied to the detector signal before the
// brightness offset.
func (in Inputs) gain() float64 {
	if !in.BeamOn {
		return 0
	}
	c := in.Contrast / contrastScale
	return in.HVRatio * c * c
}

// noiseScale returns the amplitude of the uniform scan noise.
func (in Inputs) noiseScale() float64 {
	return noiseAmplitude * math.Sqrt(in.BeamCurrent) / math.Sqrt(float64(in.Speed))
}

// Synthesizer produces frame slices. Rand drives the scan noise.
type Synthesizer struct {
	Rand *rand.Rand
}

// NewSynthesizer creates a synthesizer with its own noise source.
func NewSynthesizer(seed int64) *Synthesizer {
	return &Synthesizer{Rand: rand.New(rand.NewSource(seed))}
}

// Window samples the part of ref the display looks at, shifted by the beam
// centre offset. It has res.Width rows (y) and 5*res.Width/4 columns (x).
// Pixels beyond the reference read as 0.
func Window(ref *imaging.Gray, res Resolution, cx, cy int) *mat.Dense {
	scale := float64(nativeWidth) / float64(res.Width)
	rows := windowHeight * res.Width / nativeWidth
	cols := windowWidth * res.Width / nativeWidth

	w := mat.NewDense(rows, cols, nil)
	raw := w.RawMatrix()
	for r := 0; r < rows; r++ {
		y := windowOriginY + cy + int(float64(r)*scale)
		row := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		for c := range row {
			x := windowOriginX + cx + int(float64(c)*scale)
			row[c] = float64(ref.At(x, y))
		}
	}
	return w
}

// Convolved returns the blurred window transposed to display orientation:
// element (x, y) is display pixel x of line y, before the margin is removed.
func Convolved(ref *imaging.Gray, res Resolution, prof beam.Profile) *mat.Dense {
	window := Window(ref, res, prof.CenterX, prof.CenterY)
	conv := imaging.Convolve(window, prof.Kernel)
	return mat.DenseCopyOf(conv.T())
}

// Slice computes display columns [line, line+width) of the frame. The
// returned matrix is res.Width x width.
func (s *Synthesizer) Slice(ref *imaging.Gray, res Resolution, line, width int, in Inputs) *mat.Dense {
	conv := Convolved(ref, res, in.Profile)
	m := res.Margin()
	src := conv.Slice(m, m+res.Width, line+m, line+m+width)

	gain := in.gain()
	noise := in.noiseScale()
	offset := in.Brightness - brightnessOffset

	out := mat.NewDense(res.Width, width, nil)
	for x := 0; x < res.Width; x++ {
		for y := 0; y < width; y++ {
			v := src.At(x, y)*in.BeamCurrent + noise*s.Rand.Float64()
			out.Set(x, y, gain*v+offset)
		}
	}
	return out
}

// Render synthesizes a complete frame in one pass, as if the scan had swept
// every line with the same inputs.
func (s *Synthesizer) Render(ref *imaging.Gray, res Resolution, in Inputs) *Frame {
	f := NewFrame(res)
	f.SetColumns(0, s.Slice(ref, res, 0, res.Height, in))
	return f
}
