// Package app drives the simulated microscope: it owns the beam, the scan,
// the column peripherals and their timers, and reports changes as events.
package app

import "sync"

// EventType identifies different microscope events.
type EventType int

const (
	EventFrameUpdated EventType = iota
	EventDatazoneChanged
	EventPressureChanged
	EventVacuumChanged
	EventBeamChanged
	EventScanChanged
	EventSampleLoaded
	EventResolutionChanged
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Events is a minimal publish/subscribe bus.
type Events struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventListener
}

// NewEvents creates an empty bus.
func NewEvents() *Events {
	return &Events{listeners: make(map[EventType][]EventListener)}
}

// On registers an event listener for the specified event type.
func (e *Events) On(event EventType, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (e *Events) Emit(event EventType, data interface{}) {
	e.mu.RLock()
	listeners := e.listeners[event]
	e.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// pending collects events raised while the microscope lock is held. They are
// emitted after the lock is released so listeners may call back in.
type pending []event

type event struct {
	typ  EventType
	data interface{}
}

func (p *pending) add(typ EventType, data interface{}) {
	*p = append(*p, event{typ: typ, data: data})
}

func (e *Events) emitAll(p pending) {
	for _, ev := range p {
		e.Emit(ev.typ, ev.data)
	}
}
