package main

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// grayMat copies an 8-bit gray image into a single channel Mat. The caller
// closes the result.
func grayMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	pix := make([]byte, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		copy(pix[y*b.Dx():(y+1)*b.Dx()], img.Pix[y*img.Stride:y*img.Stride+b.Dx()])
	}
	return gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, pix)
}

// sharpness scores a frame by the variance of its Laplacian. Blur removes
// high frequencies, so the score peaks at best focus.
func sharpness(img *image.Gray) (float64, error) {
	src, err := grayMat(img)
	if err != nil {
		return 0, fmt.Errorf("frame to mat: %w", err)
	}
	defer src.Close()

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(src, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	if stddev.Empty() {
		return 0, nil
	}
	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

// writeFrame saves img with OpenCV; the extension selects the format.
func writeFrame(path string, img *image.Gray) error {
	m, err := grayMat(img)
	if err != nil {
		return err
	}
	defer m.Close()
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("could not write %s", path)
	}
	return nil
}
