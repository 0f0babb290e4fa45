package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// datazoneHeight is the height of the strip added under a saved frame: one
// text line for the column settings and one for the scale bar.
const datazoneHeight = 34

// ParamsPath returns the parameter file written next to a saved image.
func ParamsPath(imagePath string) string {
	return imagePath + "_params.txt"
}

// SaveImage stops scanning and writes the frame with its data zone to path
// as PNG, and the beam parameters to ParamsPath(path).
func (m *Microscope) SaveImage(path string) error {
	var ev pending
	m.mu.Lock()
	m.stopLocked(&ev)
	frame := m.scan.Frame().Image()
	zone := m.datazoneLocked()
	bar := m.scaleBarLocked()
	params := m.beam.Params()
	m.unlock(&ev)

	img := WithDatazone(frame, zone, bar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	pf, err := os.Create(ParamsPath(path))
	if err != nil {
		return fmt.Errorf("failed to create parameter file: %w", err)
	}
	defer pf.Close()
	if _, err := params.WriteTo(pf); err != nil {
		return fmt.Errorf("failed to write parameter file: %w", err)
	}

	log.WithField("path", path).Info("Image saved")
	return nil
}

// WithDatazone returns frame with a black strip below it carrying the
// data-zone text and a scale bar. The bar is 67.2/768 of the frame width.
func WithDatazone(frame *image.Gray, zone, bar string) *image.Gray {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h+datazoneHeight))
	draw.Draw(out, image.Rect(0, 0, w, h), frame, b.Min, draw.Src)

	drawLabel(out, 4, h+14, zone)

	barLen := int(math.Round(67.2 * float64(w) / 768))
	barY := h + 24
	draw.Draw(out, image.Rect(4, barY, 4+barLen, barY+3), image.White, image.Point{}, draw.Src)
	drawLabel(out, 4+barLen+6, h+30, bar)
	return out
}

// drawLabel writes text with its baseline at y.
func drawLabel(img draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
