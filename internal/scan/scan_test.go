package scan

import (
	"math"
	"testing"

	"sem-simulator/internal/beam"
	"sem-simulator/internal/imaging"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// flatReference is a 1024x768 reference filled with v.
func flatReference(v int) *imaging.Gray {
	g := imaging.NewGray(1024, 768)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// rampReference encodes the pixel position in its value.
func rampReference() *imaging.Gray {
	g := imaging.NewGray(1024, 768)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			g.Set(x, y, x+1000*y)
		}
	}
	return g
}

// impulseProfile is a beam that does not blur: a unit impulse at the kernel
// centre.
func impulseProfile(res Resolution, cx, cy int) beam.Profile {
	size := res.KernelSize()
	k := mat.NewDense(size, size, nil)
	k.Set(size/2, size/2, 1)
	return beam.Profile{Kernel: k, CenterX: cx, CenterY: cy}
}

func focusedProfile(t *testing.T, res Resolution) beam.Profile {
	t.Helper()
	p := beam.Params{
		ZPosition:   10,
		Focus:       0.1,
		BeamCurrent: 1,
		Convergence: 0.01,
		PixelsPerMm: float64(res.Width) * 100 / 57.15,
		KernelSize:  res.KernelSize(),
	}
	prof, err := p.Profile(beam.DefaultViewport)
	if err != nil {
		t.Fatal(err)
	}
	return prof
}

func unitInputs(prof beam.Profile) Inputs {
	return Inputs{
		Profile:     prof,
		Speed:       1,
		BeamCurrent: 1,
		Contrast:    30,
		Brightness:  250,
		BeamOn:      true,
		HVRatio:     1,
	}
}

func TestParseResolution(t *testing.T) {
	for _, r := range Resolutions {
		got, err := ParseResolution(r.String())
		if err != nil {
			t.Fatalf("%s: %v", r, err)
		}
		if got != r {
			t.Errorf("ParseResolution(%q) = %v", r.String(), got)
		}
	}
	for _, bad := range []string{"", "256", "axb", "256x", "0x0", "256x300", "-8x4"} {
		if _, err := ParseResolution(bad); err == nil {
			t.Errorf("ParseResolution(%q) succeeded", bad)
		}
	}
}

func TestResolutionDerived(t *testing.T) {
	r := Resolution{Width: 512, Height: 384}
	if r.KernelSize() != 128 || r.Margin() != 64 {
		t.Errorf("kernel %d margin %d, want 128 64", r.KernelSize(), r.Margin())
	}
}

func TestStepForSpeed(t *testing.T) {
	if StepForSpeed(1) != 10 || StepForSpeed(10) != 1 || StepForSpeed(5) != 6 {
		t.Errorf("unexpected steps %d %d %d", StepForSpeed(1), StepForSpeed(10), StepForSpeed(5))
	}
}

func TestSetSpeedClamps(t *testing.T) {
	s := NewState(DefaultResolution)
	s.SetSpeed(0)
	if s.Speed() != 1 {
		t.Errorf("speed = %d, want 1", s.Speed())
	}
	s.SetSpeed(42)
	if s.Speed() != 10 {
		t.Errorf("speed = %d, want 10", s.Speed())
	}
}

func TestTickIdleDoesNothing(t *testing.T) {
	s := NewState(DefaultResolution)
	called := false
	if s.Tick(func(line, width int) *mat.Dense { called = true; return nil }) {
		t.Error("Tick reported work while idle")
	}
	if called || s.Line() != 0 {
		t.Errorf("idle tick touched the scan: called=%v line=%d", called, s.Line())
	}
}

func TestTickWrapsAfterFullFrame(t *testing.T) {
	s := NewState(Resolution{Width: 256, Height: 192})
	s.SetSpeed(1)
	s.Start()

	var widths []int
	for i := 0; i < 20; i++ {
		s.Tick(func(line, width int) *mat.Dense {
			widths = append(widths, width)
			return mat.NewDense(256, width, nil)
		})
		if i < 19 && s.Line() != (i+1)*10 {
			t.Fatalf("tick %d: line = %d, want %d", i, s.Line(), (i+1)*10)
		}
	}
	if s.Line() != 0 {
		t.Errorf("line after 20 ticks = %d, want 0", s.Line())
	}
	if got := widths[len(widths)-1]; got != 2 {
		t.Errorf("last slice width = %d, want 2", got)
	}
	for i, w := range widths[:19] {
		if w != 10 {
			t.Errorf("slice %d width = %d, want 10", i, w)
		}
	}
}

func TestTickWritesAndReplaces(t *testing.T) {
	res := Resolution{Width: 256, Height: 192}
	s := NewState(res)
	s.SetSpeed(8) // step 3
	s.Start()

	fill := func(v float64) SliceFunc {
		return func(line, width int) *mat.Dense {
			d := make([]float64, res.Width*width)
			for i := range d {
				d[i] = v
			}
			return mat.NewDense(res.Width, width, d)
		}
	}
	s.Tick(fill(7))
	s.Stop()
	s.Start()
	s.Tick(fill(9))

	f := s.Frame()
	for x := 0; x < res.Width; x++ {
		for y := 0; y < 3; y++ {
			if f.At(x, y) != 9 {
				t.Fatalf("(%d,%d) = %g, want 9 (replaced, not blended)", x, y, f.At(x, y))
			}
		}
		if f.At(x, 3) != 0 {
			t.Fatalf("(%d,3) = %g, want untouched 0", x, f.At(x, 3))
		}
	}
}

func TestStopKeepsLineAndFrame(t *testing.T) {
	s := NewState(DefaultResolution)
	s.Start()
	s.Tick(func(line, width int) *mat.Dense {
		d := mat.NewDense(256, width, nil)
		d.Set(0, 0, 42)
		return d
	})
	s.Stop()
	if s.Status() != Idle || s.Line() != 10 || s.Frame().At(0, 0) != 42 {
		t.Errorf("after stop: status %v line %d pixel %g", s.Status(), s.Line(), s.Frame().At(0, 0))
	}
}

func TestSetResolutionResets(t *testing.T) {
	s := NewState(DefaultResolution)
	s.Start()
	s.Tick(func(line, width int) *mat.Dense { return nil })
	s.SetResolution(Resolution{Width: 512, Height: 384})
	if s.Line() != 0 {
		t.Errorf("line = %d, want 0", s.Line())
	}
	r, c := s.Frame().Matrix().Dims()
	if r != 512 || c != 384 {
		t.Errorf("frame dims = %dx%d, want 512x384", r, c)
	}
	if s.Status() != Scanning {
		t.Errorf("status = %v, want Scanning", s.Status())
	}
}

func TestWindowSampling(t *testing.T) {
	ref := rampReference()
	tests := []struct {
		res    Resolution
		cx, cy int
		step   float64
	}{
		{Resolution{Width: 256, Height: 192}, 0, 0, 2},
		{Resolution{Width: 512, Height: 384}, -7, 3, 1},
		{Resolution{Width: 1024, Height: 768}, 96, -49, 0.5},
	}
	for _, tt := range tests {
		w := Window(ref, tt.res, tt.cx, tt.cy)
		rows, cols := w.Dims()
		if rows != tt.res.Width || cols != tt.res.Width*5/4 {
			t.Fatalf("%s: window dims %dx%d", tt.res, rows, cols)
		}
		for _, rc := range [][2]int{{0, 0}, {rows - 1, cols - 1}, {rows / 3, cols / 2}} {
			x := 256 + tt.cx + int(float64(rc[1])*tt.step)
			y := 192 + tt.cy + int(float64(rc[0])*tt.step)
			if got := w.At(rc[0], rc[1]); got != float64(ref.At(x, y)) {
				t.Errorf("%s: window(%d,%d) = %g, want ref(%d,%d) = %d", tt.res, rc[0], rc[1], got, x, y, ref.At(x, y))
			}
		}
	}
}

func TestWindowOutsideReferenceIsBlack(t *testing.T) {
	small := imaging.NewGray(300, 200)
	for i := range small.Pix {
		small.Pix[i] = 5
	}
	w := Window(small, DefaultResolution, 0, 0)
	if w.At(0, 0) != 5 {
		t.Errorf("inside pixel = %g, want 5", w.At(0, 0))
	}
	if w.At(100, 100) != 0 {
		t.Errorf("outside pixel = %g, want 0", w.At(100, 100))
	}
}

func TestSliceShape(t *testing.T) {
	syn := NewSynthesizer(1)
	ref := rampReference()
	for _, res := range Resolutions[:2] {
		in := unitInputs(focusedProfile(t, res))
		for _, width := range []int{10, 2, 1} {
			out := syn.Slice(ref, res, res.Height-width, width, in)
			r, c := out.Dims()
			if r != res.Width || c != width {
				t.Errorf("%s width %d: slice dims %dx%d", res, width, r, c)
			}
		}
	}
}

func TestSliceGeometryWithoutBlur(t *testing.T) {
	syn := NewSynthesizer(2)
	ref := rampReference()
	res := Resolution{Width: 256, Height: 192}
	in := unitInputs(impulseProfile(res, 5, -3))

	line, width := 100, 4
	out := syn.Slice(ref, res, line, width, in)
	for x := 0; x < res.Width; x += 17 {
		for y := 0; y < width; y++ {
			want := float64(ref.At(256+5+2*x, 192-3+2*(line+y)))
			d := out.At(x, y) - want
			if d < -1e-4 || d > 10+1e-4 {
				t.Fatalf("(%d,%d) = %g, want %g + noise in [0,10)", x, y, out.At(x, y), want)
			}
		}
	}
}

func TestSliceBeamOffShowsBrightnessOnly(t *testing.T) {
	syn := NewSynthesizer(3)
	res := DefaultResolution
	in := unitInputs(focusedProfile(t, res))
	in.BeamOn = false
	in.Brightness = 260

	out := syn.Slice(flatReference(100), res, 0, 10, in)
	for _, v := range out.RawMatrix().Data {
		if v != 10 {
			t.Fatalf("value %g, want 10", v)
		}
	}
}

func TestSliceContrastAndHVScaleSignal(t *testing.T) {
	syn := NewSynthesizer(4)
	res := DefaultResolution
	in := unitInputs(focusedProfile(t, res))
	in.Contrast = 60 // gain 4
	in.HVRatio = 0.5 // gain 2 overall
	in.Brightness = 240

	out := syn.Slice(flatReference(50), res, 0, 10, in)
	for _, v := range out.RawMatrix().Data {
		// 2*(50 + noise) - 10 with noise in [0,10)
		if v < 90-1e-6 || v > 110+1e-6 {
			t.Fatalf("value %g outside [90,110]", v)
		}
	}
}

func TestSliceNoiseStatistics(t *testing.T) {
	res := DefaultResolution
	prof := focusedProfile(t, res)
	ref := flatReference(100)

	for _, tc := range []struct {
		current float64
		speed   int
	}{
		{1, 1}, {4, 1}, {1, 4}, {0.25, 9},
	} {
		in := unitInputs(prof)
		in.BeamCurrent = tc.current
		in.Speed = tc.speed
		amp := 10 * math.Sqrt(tc.current/float64(tc.speed))
		wantMean := 100*tc.current + amp/2
		wantVar := amp * amp / 12

		var means []float64
		for seed := int64(0); seed < 2; seed++ {
			syn := NewSynthesizer(seed)
			var all []float64
			for trial := 0; trial < 8; trial++ {
				out := syn.Slice(ref, res, 0, 10, in)
				all = append(all, out.RawMatrix().Data...)
			}
			mean, variance := stat.MeanVariance(all, nil)
			if math.Abs(mean-wantMean) > 0.02*amp+1e-6 {
				t.Errorf("I=%g speed=%d seed=%d: mean %g, want %g", tc.current, tc.speed, seed, mean, wantMean)
			}
			if math.Abs(variance-wantVar) > 0.1*wantVar {
				t.Errorf("I=%g speed=%d seed=%d: variance %g, want %g", tc.current, tc.speed, seed, variance, wantVar)
			}
			means = append(means, mean)
		}
		if math.Abs(means[0]-means[1]) > 0.03*amp {
			t.Errorf("I=%g speed=%d: seeds disagree: %v", tc.current, tc.speed, means)
		}
	}
}

func TestSliceNoiseIsFreshEachCall(t *testing.T) {
	syn := NewSynthesizer(5)
	res := DefaultResolution
	in := unitInputs(focusedProfile(t, res))
	ref := flatReference(100)
	a := syn.Slice(ref, res, 0, 10, in)
	b := syn.Slice(ref, res, 0, 10, in)
	if mat.Equal(a, b) {
		t.Error("two invocations produced identical noise")
	}
	data := a.RawMatrix().Data
	if stat.Variance(data, nil) == 0 {
		t.Error("noise is constant within a slice")
	}
}

func TestFrameImageClamps(t *testing.T) {
	f := NewFrame(Resolution{Width: 3, Height: 2})
	f.SetColumns(0, mat.NewDense(3, 2, []float64{
		-5, 300,
		12.7, 255,
		math.NaN(), 0,
	}))
	img := f.Image()
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Fatalf("image bounds %v", img.Bounds())
	}
	checks := []struct {
		x, y int
		want uint8
	}{
		{0, 0, 0}, {0, 1, 255}, {1, 0, 12}, {1, 1, 255}, {2, 0, 0}, {2, 1, 0},
	}
	for _, c := range checks {
		if got := img.GrayAt(c.x, c.y).Y; got != c.want {
			t.Errorf("pixel (%d,%d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}

func TestRenderFillsWholeFrame(t *testing.T) {
	syn := NewSynthesizer(6)
	ref := rampReference()
	res := Resolution{Width: 256, Height: 192}
	f := syn.Render(ref, res, unitInputs(impulseProfile(res, 0, 0)))

	if f.Resolution() != res {
		t.Fatalf("resolution %s", f.Resolution())
	}
	for x := 0; x < res.Width; x += 31 {
		for y := 0; y < res.Height; y += 23 {
			want := float64(ref.At(256+2*x, 192+2*y))
			if d := f.At(x, y) - want; d < -1e-4 || d > 10+1e-4 {
				t.Fatalf("(%d,%d) = %g, want %g + noise", x, y, f.At(x, y), want)
			}
		}
	}
}
