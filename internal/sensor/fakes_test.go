package sensor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeClimate struct {
	temp, hum float64
	err       error
	delay     time.Duration
	calls     int
}

func (f *fakeClimate) ReadClimate() (float64, float64, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.temp, f.hum, f.err
}

type fakeGas struct {
	reading GasReading
	err     error
	calls   int
}

func (f *fakeGas) ReadGas() (GasReading, error) {
	f.calls++
	return f.reading, f.err
}

type fakeLight struct{ level float64 }

func (f fakeLight) LightLevel() float64 { return f.level }

type fakeMotion struct{ detected bool }

func (f fakeMotion) MotionDetected() bool { return f.detected }

// fakeIndicator records every state change.
type fakeIndicator struct {
	mu      sync.Mutex
	on      bool
	history []bool
	err     error
}

func (f *fakeIndicator) On() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = true
	f.history = append(f.history, true)
	return f.err
}

func (f *fakeIndicator) Off() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.history = append(f.history, false)
	return f.err
}

func (f *fakeIndicator) State() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// fakeADC returns fractions from a script, repeating the last one.
type fakeADC struct {
	fractions []float64
	err       error
	i         int
}

func (f *fakeADC) ReadFraction() (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if len(f.fractions) == 0 {
		return 0, errors.New("no fractions scripted")
	}
	v := f.fractions[f.i]
	if f.i < len(f.fractions)-1 {
		f.i++
	}
	return v, nil
}

// hungClimate blocks every read until release is closed and tracks how many
// reads overlap.
type hungClimate struct {
	release  chan struct{}
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (h *hungClimate) ReadClimate() (float64, float64, error) {
	h.calls.Add(1)
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-h.release
	return 19.5, 55, nil
}
