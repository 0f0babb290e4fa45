// Package canvas provides the microscope screen widget.
package canvas

import (
	"image"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Screen shows the scanned frame, letterboxed on black and scaled without
// smoothing so single scan pixels stay visible.
type Screen struct {
	widget.BaseWidget

	mu    sync.Mutex
	image *fynecanvas.Image
	frame image.Image
}

// NewScreen creates a screen with a minimum size in device independent
// pixels.
func NewScreen(minSize fyne.Size) *Screen {
	s := &Screen{
		frame: image.NewGray(image.Rect(0, 0, 1, 1)),
	}
	s.image = fynecanvas.NewImageFromImage(s.frame)
	s.image.FillMode = fynecanvas.ImageFillContain
	s.image.ScaleMode = fynecanvas.ImageScalePixels
	s.image.SetMinSize(minSize)
	s.ExtendBaseWidget(s)
	return s
}

// SetFrame replaces the displayed frame. It may be called from any
// goroutine.
func (s *Screen) SetFrame(img image.Image) {
	s.mu.Lock()
	s.frame = img
	s.image.Image = img
	s.mu.Unlock()
	s.image.Refresh()
}

// Frame returns the frame last shown.
func (s *Screen) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// CreateRenderer implements fyne.Widget.
func (s *Screen) CreateRenderer() fyne.WidgetRenderer {
	bg := fynecanvas.NewRectangle(color.Black)
	return widget.NewSimpleRenderer(container.NewStack(bg, s.image))
}
