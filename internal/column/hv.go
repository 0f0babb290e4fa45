package column

import "math/rand"

// DefaultTarget is the accelerating voltage in kV.
const DefaultTarget = 15.0

// HighVoltage is the accelerating voltage supply. Switching it on ramps the
// voltage up in random increments of less than 1 kV.
type HighVoltage struct {
	target  float64
	value   float64
	on      bool
	ramping bool
}

// NewHighVoltage returns a supply that is off and ramps to target kV.
func NewHighVoltage(target float64) *HighVoltage {
	return &HighVoltage{target: target}
}

// Target returns the nominal voltage in kV.
func (h *HighVoltage) Target() float64 { return h.target }

// Value returns the present voltage in kV.
func (h *HighVoltage) Value() float64 { return h.value }

// On reports whether the beam is switched on, ramping or not.
func (h *HighVoltage) On() bool { return h.on }

// Ramping reports whether the voltage is still rising.
func (h *HighVoltage) Ramping() bool { return h.ramping }

// TurnOn starts the ramp from the present value.
func (h *HighVoltage) TurnOn() {
	if h.on {
		return
	}
	h.on = true
	h.ramping = true
}

// Off drops the voltage to zero immediately.
func (h *HighVoltage) Off() {
	h.on = false
	h.ramping = false
	h.value = 0
}

// Step raises the voltage by one random increment, or snaps it to target
// once it has got there. It reports whether the ramp is still running.
func (h *HighVoltage) Step(rng *rand.Rand) bool {
	if !h.ramping {
		return false
	}
	if h.value < h.target {
		h.value += rng.Float64()
		return true
	}
	h.value = h.target
	h.ramping = false
	return false
}

// Ratio returns value/target, the factor the detector signal scales with.
func (h *HighVoltage) Ratio() float64 {
	if h.target == 0 {
		return 0
	}
	return h.value / h.target
}

// Focus returns the effective focal length for a focus setting. While the
// voltage ramps the lens is weaker and the focus lags the setting by the
// missing kilovolts, never dropping below floor.
func (h *HighVoltage) Focus(setting, floor float64) float64 {
	if !h.ramping {
		return setting
	}
	return max(floor, setting-h.target+h.value)
}
