package app

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"sem-simulator/internal/beam"
	"sem-simulator/internal/column"
	"sem-simulator/internal/imaging"
	"sem-simulator/internal/scan"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoSample is returned when scanning is requested before a sample
	// with at least one reference image has been loaded.
	ErrNoSample = errors.New("no sample loaded")

	// ErrVented is returned when the beam is switched on before the chamber
	// has been pumped down.
	ErrVented = errors.New("chamber is not pumped")

	// ErrBeamOn is returned when venting is requested with the beam on.
	ErrBeamOn = errors.New("beam is on")

	// ErrNotVented is returned when a sample exchange is requested with the
	// chamber under vacuum.
	ErrNotVented = errors.New("chamber is not vented")
)

// Default operator settings.
const (
	DefaultContrast   = 30.0
	DefaultBrightness = 250.0
)

// Microscope is the simulated instrument. All control setters and timer
// callbacks are serialized by one mutex, so a tick never observes a
// half-applied change.
type Microscope struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	beam  *beam.Beam
	scan  *scan.State
	synth *scan.Synthesizer

	library  *imaging.Library
	detector string
	magIndex int

	focus      float64 // operator setting; the beam may differ during ramp or wobble
	contrast   float64
	brightness float64

	vacuum *column.Vacuum
	hv     *column.HighVoltage
	wobble column.Wobble

	scanTimer   *Timer
	pumpTimer   *Timer
	hvTimer     *Timer
	wobbleTimer *Timer

	events *Events
}

// New creates a vented microscope with no sample loaded.
func New(cfg Config) *Microscope {
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Microscope{
		cfg:        cfg,
		rng:        rng,
		beam:       beam.New(rng),
		scan:       scan.NewState(cfg.Resolution),
		synth:      scan.NewSynthesizer(cfg.Seed + 1),
		focus:      beam.DefaultFocus,
		contrast:   DefaultContrast,
		brightness: DefaultBrightness,
		vacuum:     column.NewVacuum(),
		hv:         column.NewHighVoltage(cfg.HVTarget),
		events:     NewEvents(),
	}
	m.applyScaleLocked()

	m.scanTimer = NewTimer("scan", scanInterval(m.scan.Speed()), func() { m.Tick() })
	m.pumpTimer = NewTimer("pump", cfg.PumpInterval, m.pumpTick)
	m.hvTimer = NewTimer("hv", cfg.HVInterval, m.hvTick)
	m.wobbleTimer = NewTimer("wobble", cfg.WobblePeriod, m.wobbleTick)
	return m
}

// scanInterval is the scan timer period for a speed setting.
func scanInterval(speed int) time.Duration {
	return time.Duration(speed) * 10 * time.Millisecond
}

// unlock releases the microscope and then delivers the events collected
// while it was held.
func (m *Microscope) unlock(ev *pending) {
	m.mu.Unlock()
	m.events.emitAll(*ev)
}

// On registers an event listener. Listeners run on the goroutine that caused
// the event, after the microscope lock has been released.
func (m *Microscope) On(event EventType, listener EventListener) {
	m.events.On(event, listener)
}

// Config returns the instrument configuration.
func (m *Microscope) Config() Config {
	return m.cfg
}

// Close stops every timer.
func (m *Microscope) Close() {
	m.scanTimer.Stop()
	m.pumpTimer.Stop()
	m.hvTimer.Stop()
	m.wobbleTimer.Stop()
}

// Samples lists the samples available under the images root.
func (m *Microscope) Samples() ([]string, error) {
	return imaging.Samples(m.cfg.ImagesRoot)
}

// SelectSample loads a sample from the images root. See LoadLibrary.
func (m *Microscope) SelectSample(name string) error {
	m.mu.Lock()
	vented := m.vacuum.Vented()
	m.mu.Unlock()
	if !vented {
		return fmt.Errorf("cannot load sample %q: %w", name, ErrNotVented)
	}

	start := time.Now()
	lib, err := imaging.LoadSample(m.cfg.ImagesRoot, name)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"sample":    name,
		"images":    lib.Len(),
		"detectors": lib.Detectors(),
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("Sample loaded")
	return m.LoadLibrary(lib)
}

// LoadLibrary makes lib the current sample. Scanning stops, the last
// detector and the lowest magnification are selected, and a fresh beam with
// new column defects replaces the old one. Operator settings carry over.
func (m *Microscope) LoadLibrary(lib *imaging.Library) error {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if !m.vacuum.Vented() {
		return fmt.Errorf("cannot load sample %q: %w", lib.Sample, ErrNotVented)
	}
	if m.scan.Status() == scan.Scanning {
		m.stopLocked(&ev)
	}

	m.library = lib
	m.detector = ""
	if dets := lib.Detectors(); len(dets) > 0 {
		m.detector = dets[len(dets)-1]
	}
	m.magIndex = 0

	old := m.beam.Params()
	m.beam = beam.New(m.rng)
	m.beam.SetStigmator(old.StigmX, old.StigmY)
	m.beam.SetAlignment(old.AlignX, old.AlignY)
	m.beam.SetBeamCurrent(old.BeamCurrent)
	m.beam.SetConvergence(old.Convergence)
	m.beam.SetFocus(m.hv.Focus(m.focus, MinFocus))
	m.applyScaleLocked()

	ev.add(EventSampleLoaded, lib.Sample)
	ev.add(EventDatazoneChanged, m.datazoneLocked())
	return nil
}

// Sample returns the loaded sample name, or "" if none.
func (m *Microscope) Sample() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.library == nil {
		return ""
	}
	return m.library.Sample
}

// Detectors returns the detectors of the loaded sample.
func (m *Microscope) Detectors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.library == nil {
		return nil
	}
	return m.library.Detectors()
}

// Detector returns the selected detector.
func (m *Microscope) Detector() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector
}

// SetDetector selects the detector whose images are scanned.
func (m *Microscope) SetDetector(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.library == nil {
		return ErrNoSample
	}
	if _, err := m.library.Reference(name, m.magnificationLocked()); err != nil {
		return err
	}
	m.detector = name
	return nil
}

// Magnifications returns the magnifications of the loaded sample, or [1]
// before a sample is loaded.
func (m *Microscope) Magnifications() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.library == nil || len(m.library.Magnifications()) == 0 {
		return []int{1}
	}
	return m.library.Magnifications()
}

// Magnification returns the selected magnification.
func (m *Microscope) Magnification() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.magnificationLocked()
}

func (m *Microscope) magnificationLocked() int {
	if m.library == nil {
		return 1
	}
	mags := m.library.Magnifications()
	if m.magIndex >= len(mags) {
		return 1
	}
	return mags[m.magIndex]
}

// SetMagnification selects one of the sample's magnifications and rescales
// the beam.
func (m *Microscope) SetMagnification(mag int) error {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if m.library == nil {
		return ErrNoSample
	}
	idx := -1
	for i, v := range m.library.Magnifications() {
		if v == mag {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: sample %q has no %dx images", imaging.ErrMissingImage, m.library.Sample, mag)
	}
	if _, err := m.library.Reference(m.detector, mag); err != nil {
		return err
	}
	m.magIndex = idx
	m.applyScaleLocked()
	ev.add(EventDatazoneChanged, m.datazoneLocked())
	return nil
}

// applyScaleLocked derives the kernel size and pixel scale from the
// resolution and magnification.
func (m *Microscope) applyScaleLocked() {
	res := m.scan.Resolution()
	m.beam.SetKernelSize(res.KernelSize())
	m.beam.SetPixelsPerMm(m.cfg.PixelsPerMm(res.Width, m.magnificationLocked()))
}

// Resolution returns the frame size.
func (m *Microscope) Resolution() scan.Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.Resolution()
}

// SetResolution switches to a new frame size. The frame is cleared and the
// raster restarts from the first line.
func (m *Microscope) SetResolution(res scan.Resolution) error {
	if err := res.Validate(); err != nil {
		return err
	}
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	m.scan.SetResolution(res)
	m.applyScaleLocked()
	ev.add(EventResolutionChanged, res)
	ev.add(EventFrameUpdated, 0)
	return nil
}

// Speed returns the scan speed setting.
func (m *Microscope) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.Speed()
}

// SetSpeed changes the scan speed (1 fastest, 10 slowest) and retunes the
// scan timer.
func (m *Microscope) SetSpeed(speed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scan.SetSpeed(speed)
	m.scanTimer.SetInterval(scanInterval(m.scan.Speed()))
}

// Focus returns the operator focus setting in mm.
func (m *Microscope) Focus() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focus
}

// SetFocus sets the focal length in mm. Values below MinFocus are clamped.
func (m *Microscope) SetFocus(mm float64) {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if !(mm >= MinFocus) {
		mm = MinFocus
	}
	m.focus = mm
	m.beam.SetFocus(m.hv.Focus(mm, MinFocus))
	ev.add(EventDatazoneChanged, m.datazoneLocked())
}

// SetStigmator sets both stigmator coils in mm of defocus.
func (m *Microscope) SetStigmator(x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetStigmator(x, y)
}

// SetStigmatorX sets the x stigmator coil.
func (m *Microscope) SetStigmatorX(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetStigmatorX(x)
}

// SetStigmatorY sets the y stigmator coil.
func (m *Microscope) SetStigmatorY(y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetStigmatorY(y)
}

// SetAlignment sets both aperture alignment screws in mm.
func (m *Microscope) SetAlignment(x, y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetAlignment(x, y)
}

// SetAlignmentX sets the x aperture alignment.
func (m *Microscope) SetAlignmentX(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetAlignmentX(x)
}

// SetAlignmentY sets the y aperture alignment.
func (m *Microscope) SetAlignmentY(y float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetAlignmentY(y)
}

// BeamCurrent returns the probe current in nA.
func (m *Microscope) BeamCurrent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beam.BeamCurrent()
}

// SetBeamCurrent sets the probe current in nA.
func (m *Microscope) SetBeamCurrent(nA float64) {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)
	m.beam.SetBeamCurrent(nA)
	ev.add(EventDatazoneChanged, m.datazoneLocked())
}

// SetConvergence sets the beam half-angle in rad.
func (m *Microscope) SetConvergence(rad float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beam.SetConvergence(rad)
}

// Contrast returns the detector gain setting.
func (m *Microscope) Contrast() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contrast
}

// SetContrast sets the detector gain. 30 is unity gain.
func (m *Microscope) SetContrast(c float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contrast = c
}

// Brightness returns the detector offset setting.
func (m *Microscope) Brightness() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brightness
}

// SetBrightness sets the detector offset. 250 adds nothing.
func (m *Microscope) SetBrightness(b float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = b
}

// Wobbling reports whether the focus wobble is running.
func (m *Microscope) Wobbling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wobble.Enabled()
}

// SetWobble starts or stops the focus wobble. amp is the swing in mm and may
// be changed while wobbling.
func (m *Microscope) SetWobble(on bool, amp float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case on && m.wobble.Enabled():
		m.wobble.SetAmplitude(amp)
	case on:
		m.wobble.Enable(amp)
		m.wobbleTimer.Start()
	default:
		m.wobble.Disable()
		m.wobbleTimer.Stop()
		m.beam.SetFocus(m.hv.Focus(m.focus, MinFocus))
	}
}

// VacuumState returns the chamber state.
func (m *Microscope) VacuumState() column.VacuumState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vacuum.State()
}

// Pressure returns the chamber pressure in Torr.
func (m *Microscope) Pressure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vacuum.Pressure()
}

// TogglePump pumps a vented chamber or vents a pumped one. Venting is
// refused while the beam is on.
func (m *Microscope) TogglePump() (column.VacuumState, error) {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if m.hv.On() {
		return m.vacuum.State(), fmt.Errorf("cannot vent: %w", ErrBeamOn)
	}
	state := m.vacuum.Toggle()
	if state == column.Pumping {
		m.pumpTimer.Start()
	} else {
		m.pumpTimer.Stop()
	}
	log.Printf("Vacuum: %s", state)
	ev.add(EventVacuumChanged, state)
	ev.add(EventPressureChanged, m.vacuum.PressureText())
	return state, nil
}

// pumpTick lowers the pressure one step and stops the pump at base pressure.
func (m *Microscope) pumpTick() {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if m.vacuum.Step(m.rng) {
		ev.add(EventPressureChanged, m.vacuum.PressureText())
		return
	}
	m.pumpTimer.Stop()
	if m.vacuum.State() == column.Pumped {
		log.WithField("pressure", m.vacuum.PressureText()).Info("Vacuum: pumped")
		ev.add(EventVacuumChanged, column.Pumped)
	}
}

// BeamOn reports whether the high voltage is switched on.
func (m *Microscope) BeamOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hv.On()
}

// HV returns the present accelerating voltage in kV.
func (m *Microscope) HV() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hv.Value()
}

// ToggleBeam switches the high voltage off, or starts ramping it up. The
// beam can only be switched on in a pumped chamber.
func (m *Microscope) ToggleBeam() (bool, error) {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if m.hv.On() {
		m.hv.Off()
		m.hvTimer.Stop()
		m.beam.SetFocus(m.focus)
		ev.add(EventBeamChanged, false)
		ev.add(EventDatazoneChanged, m.datazoneLocked())
		return false, nil
	}
	if m.vacuum.State() != column.Pumped {
		return false, fmt.Errorf("cannot switch beam on: %w", ErrVented)
	}
	m.hv.TurnOn()
	m.hvTimer.Start()
	ev.add(EventBeamChanged, true)
	return true, nil
}

// hvTick raises the voltage one step. While ramping the lens is under
// powered and the focus lags the setting.
func (m *Microscope) hvTick() {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if !m.hv.Step(m.rng) {
		m.hvTimer.Stop()
		if !m.hv.On() {
			return
		}
		log.WithField("kV", m.hv.Value()).Info("HV: ramp complete")
	}
	m.beam.SetFocus(m.hv.Focus(m.focus, MinFocus))
	ev.add(EventDatazoneChanged, m.datazoneLocked())
}

// wobbleTick swings the focus around its setting.
func (m *Microscope) wobbleTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.wobble.Enabled() {
		return
	}
	f := m.wobble.Step(m.hv.Focus(m.focus, MinFocus))
	m.beam.SetFocus(max(MinFocus, f))
}

// Scanning reports whether a scan is in progress.
func (m *Microscope) Scanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.Status() == scan.Scanning
}

// Start begins a new scan from the first line. It needs a loaded sample with
// an image for the selected detector and magnification.
func (m *Microscope) Start() error {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)
	return m.startLocked(&ev)
}

func (m *Microscope) startLocked(ev *pending) error {
	if m.library == nil || m.library.Len() == 0 {
		return ErrNoSample
	}
	if _, err := m.library.Reference(m.detector, m.magnificationLocked()); err != nil {
		return err
	}
	m.scan.Start()
	m.scanTimer.Start()
	ev.add(EventScanChanged, true)
	return nil
}

// Stop halts scanning. The frame and raster position are kept.
func (m *Microscope) Stop() {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)
	m.stopLocked(&ev)
}

func (m *Microscope) stopLocked(ev *pending) {
	m.scanTimer.Stop()
	if m.scan.Status() == scan.Idle {
		return
	}
	m.scan.Stop()
	ev.add(EventScanChanged, false)
}

// ToggleScan stops a running scan or starts a new one, and reports whether
// the microscope is now scanning.
func (m *Microscope) ToggleScan() (bool, error) {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if m.scan.Status() == scan.Scanning {
		m.stopLocked(&ev)
		return false, nil
	}
	if err := m.startLocked(&ev); err != nil {
		return false, err
	}
	return true, nil
}

// Tick advances the scan by one slice. The scan timer calls it; it can also
// be driven directly. It reports whether a slice was produced.
func (m *Microscope) Tick() bool {
	var ev pending
	m.mu.Lock()
	defer m.unlock(&ev)

	if m.scan.Status() != scan.Scanning {
		return false
	}
	ref, err := m.library.Reference(m.detector, m.magnificationLocked())
	if err != nil {
		log.WithError(err).Warn("Scan: no reference image")
		return false
	}

	prof, err := m.beam.Params().Profile(m.cfg.Viewport)
	if err != nil {
		log.WithError(err).Error("Scan: beam model rejected parameters, slice skipped")
	}
	in := scan.Inputs{
		Profile:     prof,
		Speed:       m.scan.Speed(),
		BeamCurrent: m.beam.BeamCurrent(),
		Contrast:    m.contrast,
		Brightness:  m.brightness,
		BeamOn:      m.hv.On(),
		HVRatio:     m.hv.Ratio(),
	}

	res := m.scan.Resolution()
	first := m.scan.Line()
	m.scan.Tick(func(line, width int) *mat.Dense {
		if err != nil {
			return nil
		}
		return m.synth.Slice(ref, res, line, width, in)
	})
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithFields(log.Fields{
			"line":  first,
			"next":  m.scan.Line(),
			"cx":    prof.CenterX,
			"cy":    prof.CenterY,
			"wx_nm": prof.WidthX,
			"wy_nm": prof.WidthY,
		}).Trace("Scan: slice")
	}
	ev.add(EventFrameUpdated, first)
	return err == nil
}

// Line returns the next raster line.
func (m *Microscope) Line() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.Line()
}

// Frame renders the current frame as an 8-bit image.
func (m *Microscope) Frame() *image.Gray {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.Frame().Image()
}

// Snapshot returns the beam parameters as they are now.
func (m *Microscope) Snapshot() beam.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beam.Params()
}

// Dump renders the beam parameters and widths as key = value text.
func (m *Microscope) Dump() string {
	return m.Snapshot().Dump()
}

// Datazone returns the status line shown under the image.
func (m *Microscope) Datazone() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.datazoneLocked()
}

func (m *Microscope) datazoneLocked() string {
	return fmt.Sprintf("HV = %s kV   WD = %s mm   Mag = %dx   Ip = %s nA",
		round3(m.hv.Value()), round3(m.beam.Focus()), m.magnificationLocked(),
		strconv.FormatFloat(m.beam.BeamCurrent(), 'f', -1, 64))
}

// ScaleBar returns the label of the scale bar for the current magnification.
func (m *Microscope) ScaleBar() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scaleBarLocked()
}

func (m *Microscope) scaleBarLocked() string {
	return fmt.Sprintf("%.2f µm", m.cfg.ScaleBar(m.magnificationLocked()))
}

func round3(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
