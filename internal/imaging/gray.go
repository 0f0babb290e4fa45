// Package imaging provides reference image loading, the per-sample image
// library, and FFT convolution.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"
)

// Luminance weights used to fold colour references to gray.
const (
	WeightR = 0.2989
	WeightG = 0.5870
	WeightB = 0.1140
)

// Gray is a grayscale raster with integer intensities. Reads outside the
// raster return 0.
type Gray struct {
	Width  int
	Height int
	Pix    []int // row-major, Pix[y*Width+x]
}

// NewGray allocates a zero raster.
func NewGray(width, height int) *Gray {
	return &Gray{
		Width:  width,
		Height: height,
		Pix:    make([]int, width*height),
	}
}

// At returns the intensity at (x, y), or 0 outside the raster.
func (g *Gray) At(x, y int) int {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.Pix[y*g.Width+x]
}

// Set stores v at (x, y). Writes outside the raster are ignored.
func (g *Gray) Set(x, y, v int) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.Pix[y*g.Width+x] = v
}

// FromImage converts img to a Gray raster. Gray sources keep their native
// values (8 or 16 bit); colour sources are folded with the luminance weights
// over 8-bit channels and rounded to the nearest integer.
func FromImage(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Gray16:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = int(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = luminance(img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	return g
}

// luminance folds c to gray using non-premultiplied 8-bit channels.
func luminance(c color.Color) int {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	v := float64(n.R)*WeightR + float64(n.G)*WeightG + float64(n.B)*WeightB
	return int(math.RoundToEven(v))
}

// Load reads an image file and converts it to gray.
func Load(path string) (*Gray, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", filepath.Base(path), err)
	}
	return FromImage(img), nil
}

// SupportedFormats returns the list of supported reference image formats.
func SupportedFormats() []string {
	return []string{".tif", ".tiff", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
