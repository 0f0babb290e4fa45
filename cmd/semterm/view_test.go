package main

import (
	"image"
	"testing"
)

func TestFit(t *testing.T) {
	for _, tc := range []struct {
		w, h, cols, rows int
		wantC, wantR     int
	}{
		{512, 384, 200, 50, 133, 49},
		{512, 384, 80, 100, 80, 30},
		{256, 192, 0, 10, 0, 0},
		{256, 192, 40, 15, 40, 15},
	} {
		c, r := fit(tc.w, tc.h, tc.cols, tc.rows)
		if c != tc.wantC || r != tc.wantR {
			t.Errorf("fit(%d,%d,%d,%d) = %d,%d want %d,%d",
				tc.w, tc.h, tc.cols, tc.rows, c, r, tc.wantC, tc.wantR)
		}
		if r > tc.rows || c > tc.cols {
			t.Errorf("fit(%d,%d,%d,%d) overflows", tc.w, tc.h, tc.cols, tc.rows)
		}
	}
}

func TestSample(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Pix[y*img.Stride+x] = uint8(10*y + x)
		}
	}
	got := sample(img, 2, 1)
	want := []uint8{0, 2, 20, 22}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample = %v, want %v", got, want)
		}
	}
}
