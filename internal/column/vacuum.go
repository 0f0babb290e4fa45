// Package column simulates the peripherals of the electron column: chamber
// vacuum, accelerating voltage and focus wobble.
package column

import (
	"fmt"
	"math/rand"
)

// Chamber pressures in Torr.
const (
	AtmosphericPressure = 760.0
	BasePressure        = 1e-5
)

// VacuumState is the chamber state.
type VacuumState int

const (
	Vented VacuumState = iota
	Pumping
	Pumped
)

func (s VacuumState) String() string {
	switch s {
	case Vented:
		return "Vented"
	case Pumping:
		return "Pumping"
	case Pumped:
		return "Pumped"
	default:
		return "Unknown"
	}
}

// Vacuum is the sample chamber. It starts vented.
type Vacuum struct {
	state    VacuumState
	pressure float64
}

// NewVacuum returns a vented chamber.
func NewVacuum() *Vacuum {
	return &Vacuum{state: Vented, pressure: AtmosphericPressure}
}

// State returns the chamber state.
func (v *Vacuum) State() VacuumState { return v.state }

// Pressure returns the chamber pressure in Torr.
func (v *Vacuum) Pressure() float64 { return v.pressure }

// Vented reports whether the chamber is open to air.
func (v *Vacuum) Vented() bool { return v.state == Vented }

// Pump starts evacuating a vented chamber from atmospheric pressure.
func (v *Vacuum) Pump() {
	if v.state != Vented {
		return
	}
	v.state = Pumping
	v.pressure = AtmosphericPressure
}

// Vent lets air in. The pressure jumps back to atmospheric at once.
func (v *Vacuum) Vent() {
	v.state = Vented
	v.pressure = AtmosphericPressure
}

// Toggle vents a pumping or pumped chamber and pumps a vented one.
func (v *Vacuum) Toggle() VacuumState {
	if v.state == Vented {
		v.Pump()
	} else {
		v.Vent()
	}
	return v.state
}

// Step advances pumping by one interval: the pressure drops by a random
// factor between 1 and 2 until it reaches BasePressure. It reports whether
// the pump is still running.
func (v *Vacuum) Step(rng *rand.Rand) bool {
	if v.state != Pumping {
		return false
	}
	if v.pressure > BasePressure {
		v.pressure *= 0.5 + 0.5*rng.Float64()
		return true
	}
	v.state = Pumped
	return false
}

// PressureText formats the pressure the way the gauge shows it.
func (v *Vacuum) PressureText() string {
	return FormatPressure(v.pressure)
}

// FormatPressure renders p in Torr with three significant digits.
func FormatPressure(p float64) string {
	return fmt.Sprintf("%.2e Torr", p)
}
