// Package panels provides the microscope control panels.
package panels

import (
	"fmt"
	"strconv"

	"sem-simulator/internal/app"
	"sem-simulator/internal/column"
	"sem-simulator/internal/scan"
	"sem-simulator/ui/prefs"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"
)

// Slider ranges in the units of the microscope setters.
const (
	focusMax      = 20.0
	stigmRange    = 1.0
	alignRange    = 2.0
	currentMin    = 0.01
	currentMax    = 5.0
	contrastMax   = 60.0
	brightnessMin = 150.0
	brightnessMax = 350.0
	wobbleMax     = 2.0
	sliderSteps   = 1000.0
)

// ControlPanel holds every operator control of the microscope.
type ControlPanel struct {
	scope  *app.Microscope
	prefs  *prefs.Prefs
	window fyne.Window

	container fyne.CanvasObject

	sampleSelect     *widget.Select
	detectorSelect   *widget.Select
	resolutionSelect *widget.Select
	speedSelect      *widget.Select
	magSlider        *widget.Slider
	magLabel         *widget.Label
	focusSlider      *widget.Slider
	wobbleCheck      *widget.Check
	wobbleAmp        *widget.Slider

	pumpButton  *widget.Button
	beamButton  *widget.Button
	scanButton  *widget.Button
	pressure    *widget.Label
	vacuumState *widget.Label
}

// NewControlPanel builds the panel and wires it to scope.
func NewControlPanel(scope *app.Microscope, p *prefs.Prefs, win fyne.Window) *ControlPanel {
	cp := &ControlPanel{
		scope:  scope,
		prefs:  p,
		window: win,
	}

	// Initialize all labels first (before any callbacks can fire)
	cp.pressure = widget.NewLabel(column.FormatPressure(scope.Pressure()))
	cp.vacuumState = widget.NewLabel(scope.VacuumState().String())
	cp.magLabel = widget.NewLabel("1x")

	samples, err := scope.Samples()
	if err != nil {
		log.Printf("Failed to list samples: %v", err)
	}
	cp.sampleSelect = widget.NewSelect(samples, cp.onSample)
	cp.detectorSelect = widget.NewSelect(nil, func(name string) {
		if err := scope.SetDetector(name); err != nil {
			cp.showError(err)
		}
	})

	var resNames []string
	for _, r := range scan.Resolutions {
		resNames = append(resNames, r.String())
	}
	cp.resolutionSelect = widget.NewSelect(resNames, cp.onResolution)

	var speeds []string
	for s := scan.MinSpeed; s <= scan.MaxSpeed; s++ {
		speeds = append(speeds, strconv.Itoa(s))
	}
	cp.speedSelect = widget.NewSelect(speeds, func(s string) {
		n, _ := strconv.Atoi(s)
		scope.SetSpeed(n)
		p.SetInt(prefs.KeySpeed, n)
	})

	cp.magSlider = widget.NewSlider(0, 0)
	cp.magSlider.OnChanged = cp.onMagnification

	cp.focusSlider = scaledSlider(app.MinFocus, focusMax, scope.Focus(), scope.SetFocus)
	stigX := scaledSlider(-stigmRange, stigmRange, 0, scope.SetStigmatorX)
	stigY := scaledSlider(-stigmRange, stigmRange, 0, scope.SetStigmatorY)
	alignX := scaledSlider(-alignRange, alignRange, 0, scope.SetAlignmentX)
	alignY := scaledSlider(-alignRange, alignRange, 0, scope.SetAlignmentY)
	current := scaledSlider(currentMin, currentMax, scope.BeamCurrent(), scope.SetBeamCurrent)

	contrast := widget.NewSlider(0, contrastMax)
	contrast.SetValue(p.FloatWithFallback(prefs.KeyContrast, app.DefaultContrast))
	scope.SetContrast(contrast.Value)
	contrast.OnChanged = func(v float64) {
		scope.SetContrast(v)
		p.SetFloat(prefs.KeyContrast, v)
	}
	brightness := widget.NewSlider(brightnessMin, brightnessMax)
	brightness.SetValue(p.FloatWithFallback(prefs.KeyBrightness, app.DefaultBrightness))
	scope.SetBrightness(brightness.Value)
	brightness.OnChanged = func(v float64) {
		scope.SetBrightness(v)
		p.SetFloat(prefs.KeyBrightness, v)
	}

	cp.wobbleAmp = scaledSlider(0, wobbleMax, 0.5, func(v float64) {
		if scope.Wobbling() {
			scope.SetWobble(true, v)
		}
	})
	cp.wobbleCheck = widget.NewCheck("Wobble", func(on bool) {
		scope.SetWobble(on, cp.wobbleAmp.Value)
	})

	cp.pumpButton = widget.NewButton("Pump", cp.onPump)
	cp.beamButton = widget.NewButton("Beam On", cp.onBeam)
	cp.beamButton.Disable()
	cp.scanButton = widget.NewButton("Start scanning", cp.onScan)
	cp.scanButton.Disable()

	cp.container = container.NewVBox(
		widget.NewCard("Chamber", "", container.NewVBox(
			cp.sampleSelect,
			container.NewHBox(cp.pumpButton, cp.vacuumState),
			cp.pressure,
			cp.beamButton,
		)),
		widget.NewCard("Scan", "", container.NewVBox(
			container.NewGridWithColumns(2,
				widget.NewLabel("Detector:"), cp.detectorSelect,
				widget.NewLabel("Resolution:"), cp.resolutionSelect,
				widget.NewLabel("Speed:"), cp.speedSelect,
			),
			cp.scanButton,
		)),
		widget.NewCard("Lens", "", container.NewVBox(
			container.NewBorder(nil, nil, widget.NewLabel("Mag:"), cp.magLabel, cp.magSlider),
			labelled("Focus:", cp.focusSlider),
			labelled("Stig X:", stigX),
			labelled("Stig Y:", stigY),
			labelled("Align X:", alignX),
			labelled("Align Y:", alignY),
			container.NewBorder(nil, nil, cp.wobbleCheck, nil, cp.wobbleAmp),
		)),
		widget.NewCard("Detector", "", container.NewVBox(
			labelled("Current:", current),
			labelled("Contrast:", contrast),
			labelled("Brightness:", brightness),
		)),
	)

	cp.setupEventHandlers()
	cp.restore()
	return cp
}

// Container returns the panel container.
func (cp *ControlPanel) Container() fyne.CanvasObject {
	return cp.container
}

// scaledSlider returns a slider over [lo, hi] with sliderSteps positions
// that reports its value to set.
func scaledSlider(lo, hi, value float64, set func(float64)) *widget.Slider {
	s := widget.NewSlider(lo, hi)
	s.Step = (hi - lo) / sliderSteps
	s.SetValue(value)
	s.OnChanged = set
	return s
}

func labelled(text string, obj fyne.CanvasObject) fyne.CanvasObject {
	return container.NewBorder(nil, nil, widget.NewLabel(text), nil, obj)
}

func (cp *ControlPanel) setupEventHandlers() {
	cp.scope.On(app.EventPressureChanged, func(data interface{}) {
		if text, ok := data.(string); ok {
			cp.pressure.SetText(text)
		}
	})

	cp.scope.On(app.EventVacuumChanged, func(data interface{}) {
		state, ok := data.(column.VacuumState)
		if !ok {
			return
		}
		cp.vacuumState.SetText(state.String())
		if state == column.Vented {
			cp.pumpButton.SetText("Pump")
			cp.sampleSelect.Enable()
		} else {
			cp.pumpButton.SetText("Vent")
			cp.sampleSelect.Disable()
		}
		if state == column.Pumped {
			cp.beamButton.Enable()
		} else {
			cp.beamButton.Disable()
		}
	})

	cp.scope.On(app.EventBeamChanged, func(data interface{}) {
		if on, ok := data.(bool); ok {
			if on {
				cp.beamButton.SetText("Beam Off")
				cp.pumpButton.Disable()
			} else {
				cp.beamButton.SetText("Beam On")
				cp.pumpButton.Enable()
			}
		}
	})

	cp.scope.On(app.EventScanChanged, func(data interface{}) {
		if on, ok := data.(bool); ok {
			if on {
				cp.scanButton.SetText("Stop scanning")
			} else {
				cp.scanButton.SetText("Start scanning")
			}
		}
	})

	cp.scope.On(app.EventSampleLoaded, func(data interface{}) {
		dets := cp.scope.Detectors()
		cp.detectorSelect.Options = dets
		cp.detectorSelect.SetSelected(cp.scope.Detector())
		cp.detectorSelect.Refresh()

		mags := cp.scope.Magnifications()
		cp.magSlider.Max = float64(len(mags) - 1)
		cp.magSlider.SetValue(0)
		cp.magLabel.SetText(fmt.Sprintf("%dx", cp.scope.Magnification()))
		cp.magSlider.Refresh()

		if len(dets) > 0 {
			cp.scanButton.Enable()
		} else {
			cp.scanButton.Disable()
		}
	})
}

// restore applies the saved scan settings and reloads the last sample.
func (cp *ControlPanel) restore() {
	res := cp.prefs.String(prefs.KeyResolution)
	if res == "" {
		res = scan.DefaultResolution.String()
	}
	cp.resolutionSelect.SetSelected(res)
	cp.speedSelect.SetSelected(strconv.Itoa(cp.prefs.Int(prefs.KeySpeed, scan.MinSpeed)))

	if sample := cp.prefs.String(prefs.KeySample); sample != "" {
		for _, s := range cp.sampleSelect.Options {
			if s == sample {
				cp.sampleSelect.SetSelected(sample)
				break
			}
		}
	}
}

func (cp *ControlPanel) onSample(name string) {
	if err := cp.scope.SelectSample(name); err != nil {
		cp.showError(err)
		return
	}
	cp.prefs.SetString(prefs.KeySample, name)
}

func (cp *ControlPanel) onResolution(text string) {
	res, err := scan.ParseResolution(text)
	if err == nil {
		err = cp.scope.SetResolution(res)
	}
	if err != nil {
		cp.showError(err)
		return
	}
	cp.prefs.SetString(prefs.KeyResolution, text)
}

func (cp *ControlPanel) onMagnification(v float64) {
	mags := cp.scope.Magnifications()
	i := int(v + 0.5)
	if i < 0 || i >= len(mags) {
		return
	}
	if err := cp.scope.SetMagnification(mags[i]); err != nil {
		// No sample yet; the slider only has the 1x position
		log.Debugf("Magnification: %v", err)
		return
	}
	cp.magLabel.SetText(fmt.Sprintf("%dx", mags[i]))
}

func (cp *ControlPanel) onPump() {
	if _, err := cp.scope.TogglePump(); err != nil {
		cp.showError(err)
	}
}

func (cp *ControlPanel) onBeam() {
	if _, err := cp.scope.ToggleBeam(); err != nil {
		cp.showError(err)
	}
}

func (cp *ControlPanel) onScan() {
	if _, err := cp.scope.ToggleScan(); err != nil {
		cp.showError(err)
	}
}

func (cp *ControlPanel) showError(err error) {
	log.Printf("Control: %v", err)
	if cp.window != nil {
		dialog.ShowError(err, cp.window)
	}
}
