package imaging

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// spectrum is the half-plane 2D Fourier transform of a real rows x cols
// matrix: rows x (cols/2+1) complex coefficients, row-major.
type spectrum struct {
	rows, cols, half int
	coeff            []complex128
}

// fft2 is a real-input 2D FFT of a fixed shape.
type fft2 struct {
	rows, cols int
	rowFFT     *fourier.FFT
	colFFT     *fourier.CmplxFFT
}

func newFFT2(rows, cols int) *fft2 {
	return &fft2{
		rows:   rows,
		cols:   cols,
		rowFFT: fourier.NewFFT(cols),
		colFFT: fourier.NewCmplxFFT(rows),
	}
}

// forward transforms src, reading it as if it had the plan's shape: src is
// cropped when larger and zero-padded when smaller.
func (f *fft2) forward(src mat.Matrix) spectrum {
	sr, sc := src.Dims()
	half := f.cols/2 + 1
	s := spectrum{rows: f.rows, cols: f.cols, half: half, coeff: make([]complex128, f.rows*half)}

	row := make([]float64, f.cols)
	for i := 0; i < f.rows; i++ {
		for j := range row {
			row[j] = 0
			if i < sr && j < sc {
				row[j] = src.At(i, j)
			}
		}
		f.rowFFT.Coefficients(s.coeff[i*half:(i+1)*half], row)
	}

	col := make([]complex128, f.rows)
	out := make([]complex128, f.rows)
	for k := 0; k < half; k++ {
		for i := range col {
			col[i] = s.coeff[i*half+k]
		}
		f.colFFT.Coefficients(out, col)
		for i := range out {
			s.coeff[i*half+k] = out[i]
		}
	}
	return s
}

// inverse returns the real matrix whose spectrum is s, normalized so that
// inverse(forward(x)) == x.
func (f *fft2) inverse(s spectrum) *mat.Dense {
	half := s.half
	col := make([]complex128, f.rows)
	out := make([]complex128, f.rows)
	work := make([]complex128, len(s.coeff))
	for k := 0; k < half; k++ {
		for i := range col {
			col[i] = s.coeff[i*half+k]
		}
		f.colFFT.Sequence(out, col)
		for i := range out {
			work[i*half+k] = out[i]
		}
	}

	norm := 1 / float64(f.rows*f.cols)
	data := make([]float64, f.rows*f.cols)
	for i := 0; i < f.rows; i++ {
		row := data[i*f.cols : (i+1)*f.cols]
		f.rowFFT.Sequence(row, work[i*half:(i+1)*half])
		for j := range row {
			row[j] *= norm
		}
	}
	return mat.NewDense(f.rows, f.cols, data)
}

// Convolve returns the circular convolution of img with kernel, computed in
// the frequency domain and sized to img. The kernel is cropped or
// zero-padded to the image shape, anchored at the top-left corner, so a
// kernel centred at (k/2, k/2) shifts the output by k/2 along both axes.
func Convolve(img, kernel mat.Matrix) *mat.Dense {
	rows, cols := img.Dims()
	f := newFFT2(rows, cols)

	a := f.forward(img)
	b := f.forward(kernel)
	for i := range a.coeff {
		a.coeff[i] *= b.coeff[i]
	}
	return f.inverse(a)
}
