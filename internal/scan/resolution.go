// Package scan synthesizes the displayed SEM frame column slice by column
// slice and tracks raster progress.
package scan

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is the display frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Supported display resolutions.
var Resolutions = []Resolution{
	{Width: 256, Height: 192},
	{Width: 512, Height: 384},
	{Width: 1024, Height: 768},
}

// DefaultResolution is the resolution a new microscope starts with.
var DefaultResolution = Resolutions[0]

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// KernelSize returns the beam kernel side used at this resolution.
func (r Resolution) KernelSize() int {
	return r.Width / 4
}

// Margin returns the offset into the convolved window where the displayed
// frame starts. It equals half the kernel size, which cancels the shift the
// kernel centre introduces in the convolution.
func (r Resolution) Margin() int {
	return r.Width / 8
}

// ParseResolution parses "WIDTHxHEIGHT".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", h, err)
	}
	res := Resolution{Width: width, Height: height}
	if err := res.Validate(); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// Validate checks that the frame fits inside the convolved reference
// window: the window is Width lines tall and the frame starts Margin lines
// in.
func (r Resolution) Validate() error {
	if r.Width < 8 || r.Height <= 0 {
		return fmt.Errorf("invalid resolution %s: dimensions too small", r)
	}
	if r.Height+r.Margin() > r.Width {
		return fmt.Errorf("invalid resolution %s: height exceeds %d", r, r.Width-r.Margin())
	}
	return nil
}
