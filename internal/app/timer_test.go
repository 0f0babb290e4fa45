package app

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTimerStartStop(t *testing.T) {
	var n atomic.Int32
	tm := NewTimer("test", time.Millisecond, func() { n.Add(1) })
	if tm.Running() {
		t.Fatal("new timer is running")
	}

	tm.Start()
	tm.Start() // no second goroutine
	waitFor(t, "ticks", func() bool { return n.Load() >= 3 })
	tm.Stop()
	tm.Stop()
	if tm.Running() {
		t.Fatal("timer still running after Stop")
	}

	// A tick that was already executing may land after Stop.
	time.Sleep(5 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(20 * time.Millisecond)
	if got := n.Load(); got != stopped {
		t.Errorf("ticks after stop: %d -> %d", stopped, got)
	}

	tm.Start()
	waitFor(t, "ticks after restart", func() bool { return n.Load() > stopped })
	tm.Stop()
}

func TestTimerSetInterval(t *testing.T) {
	var n atomic.Int32
	tm := NewTimer("test", time.Hour, func() { n.Add(1) })
	tm.Start()
	defer tm.Stop()

	tm.SetInterval(time.Millisecond)
	if tm.Interval() != time.Millisecond {
		t.Errorf("interval = %v", tm.Interval())
	}
	waitFor(t, "retuned ticks", func() bool { return n.Load() >= 2 })
}

func TestConfigModifiers(t *testing.T) {
	base := DefaultConfig().WithSeed(7)
	got := base.WithIntervals(0, 5*time.Millisecond, 0)

	want := base
	want.HVInterval = 5 * time.Millisecond
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("WithIntervals (-want +got):\n%s", diff)
	}
	if base.HVInterval != 200*time.Millisecond {
		t.Errorf("modifier changed the receiver: %v", base.HVInterval)
	}
}

func TestConfigScale(t *testing.T) {
	c := DefaultConfig()
	if got, want := c.PixelsPerMm(256, 100), 447.944; math.Abs(got-want) > 1e-3 {
		t.Errorf("PixelsPerMm = %g, want %g", got, want)
	}
	if got := c.ScaleBar(1); got < 5000.62 || got > 5000.63 {
		t.Errorf("ScaleBar(1) = %g", got)
	}
}
