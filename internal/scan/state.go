package scan

import "gonum.org/v1/gonum/mat"

// Speed limits. Speed 1 is the fastest scan (10 columns per tick), speed 10
// the slowest (1 column per tick).
const (
	MinSpeed = 1
	MaxSpeed = 10
)

// Status is the scan state machine state.
type Status int

const (
	Idle Status = iota
	Scanning
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Scanning:
		return "Scanning"
	default:
		return "Unknown"
	}
}

// SliceFunc computes display columns [line, line+width) as a Width x width
// matrix. Returning nil skips the write but still advances the scan.
type SliceFunc func(line, width int) *mat.Dense

// State tracks raster progress and owns the frame buffer.
type State struct {
	status Status
	line   int
	speed  int
	frame  *Frame
}

// NewState creates an idle scan at res and speed 1.
func NewState(res Resolution) *State {
	return &State{
		status: Idle,
		speed:  MinSpeed,
		frame:  NewFrame(res),
	}
}

// Status returns the current state.
func (s *State) Status() Status { return s.status }

// Line returns the first column the next tick writes.
func (s *State) Line() int { return s.line }

// Speed returns the scan speed setting.
func (s *State) Speed() int { return s.speed }

// Frame returns the frame buffer.
func (s *State) Frame() *Frame { return s.frame }

// Resolution returns the frame size.
func (s *State) Resolution() Resolution { return s.frame.Resolution() }

// Step returns the number of columns written per tick.
func (s *State) Step() int { return StepForSpeed(s.speed) }

// StepForSpeed maps a speed setting to columns per tick.
func StepForSpeed(speed int) int {
	return MaxSpeed + 1 - speed
}

// Start begins a new scan from the first column.
func (s *State) Start() {
	s.status = Scanning
	s.line = 0
}

// Stop halts scanning, keeping the current line and frame.
func (s *State) Stop() {
	s.status = Idle
}

// SetSpeed changes the scan speed, clamped to [MinSpeed, MaxSpeed].
func (s *State) SetSpeed(speed int) {
	s.speed = max(MinSpeed, min(MaxSpeed, speed))
}

// SetResolution replaces the frame with a black one of the new size and
// restarts the raster from the first column.
func (s *State) SetResolution(res Resolution) {
	s.frame = NewFrame(res)
	s.line = 0
}

// Tick writes the next slice and advances the raster, wrapping to the first
// column after the last one has been written. It does nothing while Idle and
// reports whether a slice was requested.
func (s *State) Tick(slice SliceFunc) bool {
	if s.status != Scanning {
		return false
	}
	height := s.frame.Resolution().Height
	width := min(s.Step(), height-s.line)
	if out := slice(s.line, width); out != nil {
		s.frame.SetColumns(s.line, out)
	}
	s.line += width
	if s.line >= height {
		s.line = 0
	}
	return true
}
