// Command semterm drives the simulated microscope from a terminal. The frame
// is drawn with half-block characters in 24-bit gray, so a terminal with
// true colour support is needed for a faithful picture.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"sem-simulator/internal/app"
	"sem-simulator/internal/column"
	"sem-simulator/internal/version"

	"github.com/gdamore/tcell/v2"
	log "github.com/sirupsen/logrus"
)

// Control steps per key press.
const (
	focusStep  = 0.1
	fineStep   = 0.01
	stigmStep  = 0.02
	alignStep  = 0.05
	statusRows = 3
)

const help = "p pump/vent  b beam  s scan  f/F focus  [/] fine  x/X y/Y stig  h/j/k/l align  m/M mag  d det  w wobble  1-0 speed  q quit"

type term struct {
	screen tcell.Screen
	scope  *app.Microscope
	redraw chan struct{}
	msg    string
}

func main() {
	root := flag.String("images", ".", "folder containing the Images directory")
	sampleName := flag.String("sample", "", "sample to load (default: first found)")
	seed := flag.Int64("seed", 0, "random seed for column defects and noise (0 = time based)")
	logFile := flag.String("log", "", "write log output to this file")
	flag.Parse()

	// The terminal belongs to tcell; logging goes to a file or nowhere
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.ErrorLevel)
		log.SetOutput(io.Discard)
	}
	log.Printf("Starting semterm %s", version.String())

	cfg := app.DefaultConfig().WithImagesRoot(*root)
	if *seed != 0 {
		cfg = cfg.WithSeed(*seed)
	}
	scope := app.New(cfg)
	defer scope.Close()

	name := *sampleName
	if name == "" {
		samples, err := scope.Samples()
		if err != nil || len(samples) == 0 {
			fmt.Fprintf(os.Stderr, "No samples under %s: %v\n", *root, err)
			os.Exit(1)
		}
		name = samples[0]
	}
	if err := scope.SelectSample(name); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load sample %q: %v\n", name, err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	t := &term{
		screen: screen,
		scope:  scope,
		redraw: make(chan struct{}, 1),
		msg:    "sample " + name,
	}
	for _, ev := range []app.EventType{
		app.EventFrameUpdated,
		app.EventDatazoneChanged,
		app.EventPressureChanged,
		app.EventVacuumChanged,
		app.EventBeamChanged,
		app.EventScanChanged,
	} {
		scope.On(ev, func(interface{}) { t.requestRedraw() })
	}
	t.run()
}

// requestRedraw coalesces redraw requests from the microscope timers.
func (t *term) requestRedraw() {
	select {
	case t.redraw <- struct{}{}:
	default:
	}
}

func (t *term) run() {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	// Cap the redraw rate; a fast scan emits far more frames than a
	// terminal can show
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	dirty := true
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !t.handleKey(ev) {
					return
				}
				dirty = true
			case *tcell.EventResize:
				t.screen.Sync()
				dirty = true
			}
		case <-t.redraw:
			dirty = true
		case <-ticker.C:
			if dirty {
				t.draw()
				dirty = false
			}
		}
	}
}

func (t *term) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
	default:
		return true
	}

	s := t.scope
	p := s.Snapshot()
	var err error
	switch r := ev.Rune(); r {
	case 'q':
		return false
	case 'p':
		var st column.VacuumState
		st, err = s.TogglePump()
		t.msg = "vacuum " + st.String()
	case 'b':
		var on bool
		on, err = s.ToggleBeam()
		t.msg = fmt.Sprintf("beam on: %v", on)
	case 's':
		var on bool
		on, err = s.ToggleScan()
		t.msg = fmt.Sprintf("scanning: %v", on)
	case 'f':
		s.SetFocus(s.Focus() - focusStep)
	case 'F':
		s.SetFocus(s.Focus() + focusStep)
	case '[':
		s.SetFocus(s.Focus() - fineStep)
	case ']':
		s.SetFocus(s.Focus() + fineStep)
	case 'x':
		s.SetStigmatorX(p.StigmX - stigmStep)
	case 'X':
		s.SetStigmatorX(p.StigmX + stigmStep)
	case 'y':
		s.SetStigmatorY(p.StigmY - stigmStep)
	case 'Y':
		s.SetStigmatorY(p.StigmY + stigmStep)
	case 'h':
		s.SetAlignmentX(p.AlignX - alignStep)
	case 'l':
		s.SetAlignmentX(p.AlignX + alignStep)
	case 'k':
		s.SetAlignmentY(p.AlignY - alignStep)
	case 'j':
		s.SetAlignmentY(p.AlignY + alignStep)
	case 'm', 'M':
		err = t.stepMagnification(r == 'M')
	case 'd':
		err = t.nextDetector()
	case 'w':
		s.SetWobble(!s.Wobbling(), 0.5)
		t.msg = fmt.Sprintf("wobble: %v", s.Wobbling())
	case '1', '2', '3', '4', '5', '6', '7', '8', '9', '0':
		speed := int(r - '0')
		if speed == 0 {
			speed = 10
		}
		s.SetSpeed(speed)
		t.msg = fmt.Sprintf("speed %d", speed)
	}
	if err != nil {
		t.msg = err.Error()
		log.WithError(err).Debug("Key rejected")
	}
	return true
}

func (t *term) stepMagnification(up bool) error {
	mags := t.scope.Magnifications()
	cur := t.scope.Magnification()
	for i, m := range mags {
		if m != cur {
			continue
		}
		if up && i+1 < len(mags) {
			return t.scope.SetMagnification(mags[i+1])
		}
		if !up && i > 0 {
			return t.scope.SetMagnification(mags[i-1])
		}
	}
	return nil
}

func (t *term) nextDetector() error {
	dets := t.scope.Detectors()
	cur := t.scope.Detector()
	for i, d := range dets {
		if d == cur {
			next := dets[(i+1)%len(dets)]
			t.msg = "detector " + next
			return t.scope.SetDetector(next)
		}
	}
	return nil
}

func (t *term) draw() {
	s := t.screen
	s.Clear()
	w, h := s.Size()

	frame := t.scope.Frame()
	b := frame.Bounds()
	cols, rows := fit(b.Dx(), b.Dy(), w, h-statusRows)
	drawFrame(s, frame, (w-cols)/2, 0, cols, rows)

	status := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	y := max(rows, h-statusRows)
	drawText(s, 0, y, w, t.scope.Datazone()+"   "+t.scope.ScaleBar(), status)
	drawText(s, 0, y+1, w, fmt.Sprintf("%s  %s  %s",
		t.scope.VacuumState(), column.FormatPressure(t.scope.Pressure()), t.msg), status)
	drawText(s, 0, y+2, w, help, tcell.StyleDefault.Foreground(tcell.ColorGray))
	s.Show()
}
