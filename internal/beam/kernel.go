package beam

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kernel returns the beam intensity distribution in the sample plane as a
// KernelSize x KernelSize matrix that sums to 1. Rows are y, columns are x,
// and offsets are measured from (size/2, size/2).
func (p Params) Kernel() (*mat.Dense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	size := p.KernelSize
	sx, sy := p.Sigma2Px()
	theta := p.AstigAngle()

	cos2 := math.Cos(theta) * math.Cos(theta)
	sin2 := math.Sin(theta) * math.Sin(theta)
	a := cos2/sx + sin2/sy
	c := sin2/sx + cos2/sy
	b := math.Sin(2*theta) * (1/sy - 1/sx)

	center := float64(size) / 2
	data := make([]float64, size*size)
	var sum float64
	for i := 0; i < size; i++ {
		dy := float64(i) - center
		row := data[i*size : (i+1)*size]
		for j := range row {
			dx := float64(j) - center
			v := math.Exp(-dx*dx*a - dy*dy*c + dy*dx*b)
			row[j] = v
			sum += v
		}
	}

	k := mat.NewDense(size, size, data)
	if !(sum > 0) || math.IsInf(sum, 0) {
		// The spot is narrower than a pixel everywhere on the grid.
		k.Zero()
		mid := size / 2
		k.Set(mid, mid, 1)
		return k, nil
	}
	k.Scale(1/sum, k)
	return k, nil
}
