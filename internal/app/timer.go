package app

import (
	"sync"
	"time"
)

// Timer calls a function at a fixed interval from a background goroutine.
// It can be stopped, restarted and retuned while running.
type Timer struct {
	mu       sync.Mutex
	name     string
	interval time.Duration
	onTick   func()
	stopCh   chan struct{}
	running  bool
}

// NewTimer creates a stopped timer. The callback is called from a background
// goroutine - use appropriate synchronization if it touches shared state.
func NewTimer(name string, interval time.Duration, onTick func()) *Timer {
	return &Timer{
		name:     name,
		interval: interval,
		onTick:   onTick,
	}
}

// Name returns the label used in log messages.
func (t *Timer) Name() string { return t.name }

// Start begins ticking. Starting a running timer does nothing.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.startLocked()
}

func (t *Timer) startLocked() {
	// Fresh stop channel per run so a restarted timer never sees an old close
	t.stopCh = make(chan struct{})
	t.running = true
	go t.tickLoop(t.stopCh, t.interval)
}

// Stop halts ticking. A tick already in progress runs to completion.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.stopCh)
	t.running = false
}

// Running reports whether the timer is started.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Interval returns the tick period.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetInterval changes the tick period, restarting a running timer so the new
// period applies from now on.
func (t *Timer) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
	if t.running {
		close(t.stopCh)
		t.startLocked()
	}
}

// tickLoop calls onTick every interval until stop is closed.
func (t *Timer) tickLoop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Stop may have raced with the tick
			select {
			case <-stop:
				return
			default:
			}
			if t.onTick != nil {
				t.onTick()
			}
		}
	}
}
