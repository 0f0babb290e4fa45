package app

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sem-simulator/internal/column"
	"sem-simulator/internal/imaging"
	"sem-simulator/internal/scan"

	"github.com/google/go-cmp/cmp"
)

func testConfig() Config {
	return DefaultConfig().
		WithSeed(1).
		WithIntervals(time.Millisecond, time.Millisecond, time.Millisecond)
}

func newTestMicroscope(t *testing.T) *Microscope {
	t.Helper()
	m := New(testConfig())
	t.Cleanup(m.Close)
	return m
}

func flatGray(v int) *imaging.Gray {
	g := imaging.NewGray(1024, 768)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// testLibrary has SE at 100x and 500x but BSE only at 100x.
func testLibrary() *imaging.Library {
	lib := imaging.NewLibrary("grid")
	ref := flatGray(100)
	lib.Add("BSE", 100, ref)
	lib.Add("SE", 100, ref)
	lib.Add("SE", 500, ref)
	return lib
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// scanManually starts the raster without the scan timer so the test drives
// every tick.
func scanManually(m *Microscope) {
	m.mu.Lock()
	m.scan.Start()
	m.mu.Unlock()
}

func pumpAndBeamOn(t *testing.T, m *Microscope) {
	t.Helper()
	if _, err := m.TogglePump(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "pump down", func() bool { return m.VacuumState() == column.Pumped })
	if _, err := m.ToggleBeam(); err != nil {
		t.Fatal(err)
	}
	target := m.Config().HVTarget
	waitFor(t, "HV ramp", func() bool { return m.HV() == target })
}

func TestStartRequiresSample(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.Start(); !errors.Is(err, ErrNoSample) {
		t.Fatalf("Start() = %v, want ErrNoSample", err)
	}
	if _, err := m.ToggleScan(); !errors.Is(err, ErrNoSample) {
		t.Fatalf("ToggleScan() = %v, want ErrNoSample", err)
	}
	if err := m.SetDetector("SE"); !errors.Is(err, ErrNoSample) {
		t.Fatalf("SetDetector() = %v, want ErrNoSample", err)
	}
	if m.Magnification() != 1 {
		t.Errorf("magnification without sample = %d, want 1", m.Magnification())
	}
}

func TestLoadLibrarySelectsLastDetector(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	if m.Sample() != "grid" || m.Detector() != "SE" || m.Magnification() != 100 {
		t.Errorf("sample %q detector %q mag %d", m.Sample(), m.Detector(), m.Magnification())
	}
	if diff := cmp.Diff([]int{100, 500}, m.Magnifications()); diff != "" {
		t.Errorf("magnifications (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"BSE", "SE"}, m.Detectors()); diff != "" {
		t.Errorf("detectors (-want +got):\n%s", diff)
	}
}

func TestLoadLibraryKeepsOperatorSettings(t *testing.T) {
	m := newTestMicroscope(t)
	m.SetFocus(7)
	m.SetStigmator(0.1, -0.2)
	m.SetAlignment(0.3, 0.4)
	m.SetBeamCurrent(2)
	before := m.Snapshot()

	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	after := m.Snapshot()
	if after.Focus != 7 || after.StigmX != 0.1 || after.StigmY != -0.2 ||
		after.AlignX != 0.3 || after.AlignY != 0.4 || after.BeamCurrent != 2 {
		t.Errorf("operator settings lost: %+v", after)
	}
	if after.ZPosition == before.ZPosition && after.AstigmX == before.AstigmX {
		t.Error("column defects were not redrawn")
	}
}

func TestLoadLibraryStopsScan(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	scanManually(m)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	if m.Scanning() {
		t.Error("still scanning after sample change")
	}
}

func TestSetMagnificationRescalesBeam(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	if err := m.SetMagnification(500); err != nil {
		t.Fatal(err)
	}
	width, mag, screen := 256.0, 500.0, 57.15
	want := width * mag / screen
	if got := m.Snapshot().PixelsPerMm; got != want {
		t.Errorf("pixels per mm = %g, want %g", got, want)
	}
	if err := m.SetMagnification(42); !errors.Is(err, imaging.ErrMissingImage) {
		t.Errorf("SetMagnification(42) = %v, want ErrMissingImage", err)
	}
	if err := m.SetDetector("BSE"); !errors.Is(err, imaging.ErrMissingImage) {
		t.Errorf("SetDetector(BSE) at 500x = %v, want ErrMissingImage", err)
	}
	if m.Detector() != "SE" {
		t.Errorf("detector changed to %q on error", m.Detector())
	}
}

func TestSetResolution(t *testing.T) {
	m := newTestMicroscope(t)
	res := scan.Resolution{Width: 512, Height: 384}
	if err := m.SetResolution(res); err != nil {
		t.Fatal(err)
	}
	if got := m.Snapshot().KernelSize; got != 128 {
		t.Errorf("kernel size = %d, want 128", got)
	}
	if b := m.Frame().Bounds(); b.Dx() != 512 || b.Dy() != 384 {
		t.Errorf("frame bounds = %v", b)
	}
	if err := m.SetResolution(scan.Resolution{Width: 100, Height: 100}); err == nil {
		t.Error("oversized height accepted")
	}
}

func TestSetFocusClamps(t *testing.T) {
	m := newTestMicroscope(t)
	m.SetFocus(-3)
	if m.Focus() != MinFocus || m.Snapshot().Focus != MinFocus {
		t.Errorf("focus = %g / %g, want %g", m.Focus(), m.Snapshot().Focus, MinFocus)
	}
	m.SetFocus(12.5)
	if m.Snapshot().Focus != 12.5 {
		t.Errorf("focus = %g, want 12.5", m.Snapshot().Focus)
	}
}

func TestSetSpeedRetunesTimer(t *testing.T) {
	m := newTestMicroscope(t)
	m.SetSpeed(7)
	if m.Speed() != 7 || m.scanTimer.Interval() != 70*time.Millisecond {
		t.Errorf("speed %d interval %v", m.Speed(), m.scanTimer.Interval())
	}
	m.SetSpeed(99)
	if m.Speed() != scan.MaxSpeed {
		t.Errorf("speed %d, want %d", m.Speed(), scan.MaxSpeed)
	}
}

func TestBeamInterlocks(t *testing.T) {
	m := newTestMicroscope(t)
	if _, err := m.ToggleBeam(); !errors.Is(err, ErrVented) {
		t.Fatalf("ToggleBeam() vented = %v, want ErrVented", err)
	}
	pumpAndBeamOn(t, m)

	if _, err := m.TogglePump(); !errors.Is(err, ErrBeamOn) {
		t.Errorf("TogglePump() with beam on = %v, want ErrBeamOn", err)
	}
	if err := m.SelectSample("anything"); !errors.Is(err, ErrNotVented) {
		t.Errorf("SelectSample() pumped = %v, want ErrNotVented", err)
	}

	on, err := m.ToggleBeam()
	if err != nil || on {
		t.Fatalf("ToggleBeam() = %v, %v", on, err)
	}
	if m.HV() != 0 {
		t.Errorf("HV after beam off = %g", m.HV())
	}
	state, err := m.TogglePump()
	if err != nil || state != column.Vented || m.Pressure() != column.AtmosphericPressure {
		t.Errorf("vent: state %v pressure %g err %v", state, m.Pressure(), err)
	}
}

func TestTickIdleDoesNothing(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	if m.Tick() {
		t.Error("idle tick produced a slice")
	}
}

func TestTickWithBeamOff(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	m.SetBrightness(300)
	scanManually(m)
	if !m.Tick() {
		t.Fatal("tick produced no slice")
	}
	img := m.Frame()
	for x := 0; x < 256; x += 31 {
		if v := img.GrayAt(x, 0).Y; v != 50 {
			t.Fatalf("pixel (%d,0) = %d, want brightness offset 50", x, v)
		}
		if v := img.GrayAt(x, 10).Y; v != 0 {
			t.Fatalf("pixel (%d,10) = %d, want unscanned 0", x, v)
		}
	}
	if m.Line() != 10 {
		t.Errorf("line = %d, want 10", m.Line())
	}
}

func TestTickWithBeamOn(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	pumpAndBeamOn(t, m)

	scanManually(m)
	for i := 0; i < 20; i++ {
		m.Tick()
	}
	if m.Line() != 0 {
		t.Errorf("line after a full frame = %d, want 0", m.Line())
	}
	img := m.Frame()
	for y := 0; y < 192; y += 7 {
		for x := 0; x < 256; x += 13 {
			if v := img.GrayAt(x, y).Y; v < 100 || v > 110 {
				t.Fatalf("pixel (%d,%d) = %d, want 100..110", x, y, v)
			}
		}
	}
}

func TestTimerDrivenScan(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	var frames atomic.Int32
	m.On(EventFrameUpdated, func(interface{}) { frames.Add(1) })

	if on, err := m.ToggleScan(); err != nil || !on {
		t.Fatalf("ToggleScan() = %v, %v", on, err)
	}
	waitFor(t, "scan ticks", func() bool { return frames.Load() >= 3 })
	if on, err := m.ToggleScan(); err != nil || on {
		t.Fatalf("ToggleScan() = %v, %v", on, err)
	}
	line := m.Line()
	time.Sleep(30 * time.Millisecond)
	if m.Line() != line {
		t.Errorf("scan advanced after stop: %d -> %d", line, m.Line())
	}
}

func TestEventListenersMayCallBack(t *testing.T) {
	m := newTestMicroscope(t)
	var got string
	m.On(EventDatazoneChanged, func(data interface{}) {
		got = m.Datazone()
		if data.(string) != got {
			t.Errorf("event data %q, datazone %q", data, got)
		}
	})
	m.SetFocus(4)
	if !strings.Contains(got, "WD = 4 mm") {
		t.Errorf("datazone = %q", got)
	}
}

func TestDatazone(t *testing.T) {
	m := newTestMicroscope(t)
	want := "HV = 0 kV   WD = 0.1 mm   Mag = 1x   Ip = 1 nA"
	if got := m.Datazone(); got != want {
		t.Errorf("Datazone() = %q, want %q", got, want)
	}
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	m.SetFocus(10.12345)
	m.SetBeamCurrent(0.25)
	want = "HV = 0 kV   WD = 10.123 mm   Mag = 100x   Ip = 0.25 nA"
	if got := m.Datazone(); got != want {
		t.Errorf("Datazone() = %q, want %q", got, want)
	}
	if got := m.ScaleBar(); got != "50.01 µm" {
		t.Errorf("ScaleBar() = %q", got)
	}
}

func TestWobbleSwingsFocus(t *testing.T) {
	m := newTestMicroscope(t)
	m.SetFocus(5)
	m.SetWobble(true, 1)
	waitFor(t, "wobble", func() bool { return m.Snapshot().Focus != 5 })
	if f := m.Snapshot().Focus; f < 4 || f > 6 {
		t.Errorf("wobbled focus %g outside 5±1", f)
	}
	m.SetWobble(false, 0)
	if f := m.Snapshot().Focus; f != 5 {
		t.Errorf("focus after wobble = %g, want 5", f)
	}
}

func TestSaveImage(t *testing.T) {
	m := newTestMicroscope(t)
	if err := m.LoadLibrary(testLibrary()); err != nil {
		t.Fatal(err)
	}
	scanManually(m)
	m.Tick()

	path := filepath.Join(t.TempDir(), "frame.png")
	if err := m.SaveImage(path); err != nil {
		t.Fatal(err)
	}
	if m.Scanning() {
		t.Error("still scanning after save")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b != image.Rect(0, 0, 256, 192+datazoneHeight) {
		t.Errorf("saved bounds = %v", b)
	}

	params, err := os.ReadFile(ParamsPath(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"focus = 0.1\n", "size = 64\n", "beam_width_x_nm = "} {
		if !strings.Contains(string(params), key) {
			t.Errorf("parameter file lacks %q:\n%s", key, params)
		}
	}
}

func TestWithDatazoneDrawsText(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 256, 192))
	out := WithDatazone(frame, "HV = 15 kV", "50.01 µm")
	lit := 0
	b := out.Bounds()
	for y := 192; y < b.Max.Y; y++ {
		for x := 0; x < b.Max.X; x++ {
			if out.GrayAt(x, y).Y > 0 {
				lit++
			}
		}
	}
	if lit < 50 {
		t.Errorf("data zone has only %d lit pixels", lit)
	}
}

func TestSelectSampleFromDisk(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Images", "tin", "SE")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "200.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 1024, 768))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	m := New(testConfig().WithImagesRoot(root))
	t.Cleanup(m.Close)
	samples, err := m.Samples()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"tin"}, samples); diff != "" {
		t.Errorf("samples (-want +got):\n%s", diff)
	}
	if err := m.SelectSample("tin"); err != nil {
		t.Fatal(err)
	}
	if m.Magnification() != 200 || m.Detector() != "SE" {
		t.Errorf("mag %d detector %q", m.Magnification(), m.Detector())
	}
}
