package app

import (
	"time"

	"sem-simulator/internal/beam"
	"sem-simulator/internal/column"
	"sem-simulator/internal/scan"
)

// MinFocus is the shortest focal length the lens can be driven to, in mm.
// Focus requests below it are clamped before they reach the beam model.
const MinFocus = 0.1

// Config holds the fixed properties of a simulated microscope.
type Config struct {
	// ScreenWidth is the width in mm of the screen the reference images
	// were recorded on at 1x.
	ScreenWidth float64

	// ImagesRoot is the folder that holds the Images directory.
	ImagesRoot string

	// HVTarget is the accelerating voltage in kV.
	HVTarget float64

	PumpInterval time.Duration
	HVInterval   time.Duration
	WobblePeriod time.Duration

	Viewport   beam.Viewport
	Resolution scan.Resolution

	// Seed drives the column defects, pumping, HV ramp and scan noise.
	Seed int64
}

// DefaultConfig returns the configuration of the stock instrument: a 4.5"
// screen, 15 kV, and images next to the working directory.
func DefaultConfig() Config {
	return Config{
		ScreenWidth:  57.15,
		ImagesRoot:   ".",
		HVTarget:     column.DefaultTarget,
		PumpInterval: 50 * time.Millisecond,
		HVInterval:   200 * time.Millisecond,
		WobblePeriod: 200 * time.Millisecond,
		Viewport:     beam.DefaultViewport,
		Resolution:   scan.DefaultResolution,
		Seed:         time.Now().UnixNano(),
	}
}

// WithImagesRoot returns a copy of c reading samples from root.
func (c Config) WithImagesRoot(root string) Config {
	c.ImagesRoot = root
	return c
}

// WithSeed returns a copy of c with a fixed random seed.
func (c Config) WithSeed(seed int64) Config {
	c.Seed = seed
	return c
}

// WithResolution returns a copy of c starting at res.
func (c Config) WithResolution(res scan.Resolution) Config {
	c.Resolution = res
	return c
}

// WithHVTarget returns a copy of c with a different accelerating voltage.
func (c Config) WithHVTarget(kV float64) Config {
	c.HVTarget = kV
	return c
}

// WithScreenWidth returns a copy of c with a different screen width in mm.
func (c Config) WithScreenWidth(mm float64) Config {
	c.ScreenWidth = mm
	return c
}

// WithIntervals returns a copy of c with different peripheral timer
// intervals. Zero values keep the current setting.
func (c Config) WithIntervals(pump, hv, wobble time.Duration) Config {
	if pump > 0 {
		c.PumpInterval = pump
	}
	if hv > 0 {
		c.HVInterval = hv
	}
	if wobble > 0 {
		c.WobblePeriod = wobble
	}
	return c
}

// PixelsPerMm returns the beam scale for a frame width and magnification.
func (c Config) PixelsPerMm(width, mag int) float64 {
	return float64(width) * float64(mag) / c.ScreenWidth
}

// ScaleBar returns the length in µm that the data-zone scale bar stands for
// at mag.
func (c Config) ScaleBar(mag int) float64 {
	return c.ScreenWidth * 1000 * 67.2 / 768 / float64(mag)
}
