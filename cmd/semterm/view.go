package main

import (
	"image"

	"github.com/gdamore/tcell/v2"
)

// upperHalf draws the top pixel of a cell in the foreground colour and the
// bottom pixel in the background colour, giving two square-ish pixels per
// cell.
const upperHalf = '▀'

// fit returns the cell grid that shows a w x h frame as large as possible
// inside cols x rows cells without distorting it.
func fit(w, h, cols, rows int) (int, int) {
	if w <= 0 || h <= 0 || cols <= 0 || rows <= 0 {
		return 0, 0
	}
	c := min(cols, 2*rows*w/h)
	r := c * h / w / 2
	return c, r
}

// sample reduces img to cols x 2*rows gray levels by nearest neighbour.
// The result is indexed [py*cols+px].
func sample(img *image.Gray, cols, rows int) []uint8 {
	b := img.Bounds()
	out := make([]uint8, cols*2*rows)
	if cols == 0 || rows == 0 {
		return out
	}
	for py := 0; py < 2*rows; py++ {
		sy := b.Min.Y + py*b.Dy()/(2*rows)
		for px := 0; px < cols; px++ {
			sx := b.Min.X + px*b.Dx()/cols
			out[py*cols+px] = img.GrayAt(sx, sy).Y
		}
	}
	return out
}

func gray(v uint8) tcell.Color {
	return tcell.NewRGBColor(int32(v), int32(v), int32(v))
}

// drawFrame paints img into the cell rectangle at (x0, y0).
func drawFrame(s tcell.Screen, img *image.Gray, x0, y0, cols, rows int) {
	pix := sample(img, cols, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			top := pix[2*r*cols+c]
			bottom := pix[(2*r+1)*cols+c]
			style := tcell.StyleDefault.Foreground(gray(top)).Background(gray(bottom))
			s.SetContent(x0+c, y0+r, upperHalf, nil, style)
		}
	}
}

// drawText writes a single line, clipped to width.
func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) {
	i := 0
	for _, ch := range text {
		if i >= width {
			return
		}
		s.SetContent(x+i, y, ch, nil, style)
		i++
	}
	for ; i < width; i++ {
		s.SetContent(x+i, y, ' ', nil, style)
	}
}
