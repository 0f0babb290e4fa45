package scan

import (
	"image"

	"gonum.org/v1/gonum/mat"
)

// Frame is the displayed image. It is indexed [x][y]: Width rows and Height
// columns, so one scan step replaces a block of columns.
type Frame struct {
	res  Resolution
	data *mat.Dense
}

// NewFrame allocates a black frame.
func NewFrame(res Resolution) *Frame {
	return &Frame{
		res:  res,
		data: mat.NewDense(res.Width, res.Height, nil),
	}
}

// Resolution returns the frame size.
func (f *Frame) Resolution() Resolution { return f.res }

// At returns the value at display pixel (x, y).
func (f *Frame) At(x, y int) float64 { return f.data.At(x, y) }

// Matrix exposes the frame data read-only.
func (f *Frame) Matrix() mat.Matrix { return f.data }

// SetColumns replaces columns [y, y+c) with slice, where slice is
// Width x c. Existing content is overwritten, never blended.
func (f *Frame) SetColumns(y int, slice mat.Matrix) {
	r, c := slice.Dims()
	view := f.data.Slice(0, r, y, y+c).(*mat.Dense)
	view.Copy(slice)
}

// Image renders the frame as an 8-bit gray image, clamping to 0..255.
func (f *Frame) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.res.Width, f.res.Height))
	for x := 0; x < f.res.Width; x++ {
		for y := 0; y < f.res.Height; y++ {
			img.Pix[y*img.Stride+x] = clampByte(f.data.At(x, y))
		}
	}
	return img
}

func clampByte(v float64) uint8 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
