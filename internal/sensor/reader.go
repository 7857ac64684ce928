package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nerrad567/envsensor/internal/fault"
)

// defaultReadTimeout bounds a single climate or gas read.
// A DHT22 transaction takes ~5ms; the MQ-2 average takes ~250ms.
const defaultReadTimeout = 2 * time.Second

// LightMode selects how the raw light level is compared with the threshold.
type LightMode string

const (
	// LightEqual reports light when the level equals the threshold.
	// A photoresistor on a digital input reads 0 when lit.
	LightEqual LightMode = "equal"

	// LightAbove reports light when the level is above the threshold.
	LightAbove LightMode = "above"
)

// LightThreshold configures the light boolean.
type LightThreshold struct {
	Mode  LightMode
	Value float64
}

// Evaluate returns the light boolean for a raw level.
func (t LightThreshold) Evaluate(level float64) bool {
	if t.Mode == LightAbove {
		return level > t.Value
	}
	return level == t.Value
}

// Options configures a Reader.
type Options struct {
	Climate   ClimateSource
	Gas       GasSource
	Light     LightSource
	Motion    MotionSource
	Indicator Indicator

	LightThreshold LightThreshold

	// ReadTimeout bounds each climate and gas read. Zero uses 2s.
	ReadTimeout time.Duration

	Logger *slog.Logger
}

// Reader acquires one Samples set per call.
type Reader struct {
	climate   ClimateSource
	gas       GasSource
	light     LightSource
	motion    MotionSource
	indicator Indicator

	threshold LightThreshold
	timeout   time.Duration
	logger    *slog.Logger

	// At most one call per driver is in flight, even after a timeout.
	climateBusy atomic.Bool
	gasBusy     atomic.Bool
}

// NewReader validates opts and returns a Reader.
func NewReader(opts Options) (*Reader, error) {
	switch {
	case opts.Climate == nil:
		return nil, fmt.Errorf("%w: climate", ErrMissingDriver)
	case opts.Gas == nil:
		return nil, fmt.Errorf("%w: gas", ErrMissingDriver)
	case opts.Light == nil:
		return nil, fmt.Errorf("%w: light", ErrMissingDriver)
	case opts.Motion == nil:
		return nil, fmt.Errorf("%w: motion", ErrMissingDriver)
	case opts.Indicator == nil:
		return nil, fmt.Errorf("%w: indicator", ErrMissingDriver)
	}

	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	threshold := opts.LightThreshold
	if threshold.Mode == "" {
		threshold.Mode = LightEqual
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reader{
		climate:   opts.Climate,
		gas:       opts.Gas,
		light:     opts.Light,
		motion:    opts.Motion,
		indicator: opts.Indicator,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger.With("component", "sensor"),
	}, nil
}

// ResetIndicator switches the indicator off. Called at the start of every cycle.
func (r *Reader) ResetIndicator() {
	if err := r.indicator.Off(); err != nil {
		r.logger.Debug("indicator off failed", "error", err)
	}
}

// ReadAll reads every sensor family once. It never returns an error:
// failed families come back as absent samples with their cause.
func (r *Reader) ReadAll(ctx context.Context) Samples {
	var out Samples

	temp, hum := r.readClimate(ctx)
	out[Temperature], out[Humidity] = temp, hum

	lpg, co, smoke := r.readGas(ctx)
	out[LPG], out[CO], out[Smoke] = lpg, co, smoke

	out[Light] = Flag(Light, r.threshold.Evaluate(r.light.LightLevel()))
	out[Motion] = r.readMotion()

	return out
}

func (r *Reader) readClimate(ctx context.Context) (Sample, Sample) {
	type result struct {
		temp, hum float64
		err       error
	}
	res, err := bounded(ctx, &r.climateBusy, r.timeout, func() result {
		t, h, err := r.climate.ReadClimate()
		return result{t, h, err}
	})
	if err == nil {
		err = res.err
	}
	if err != nil {
		err = asSensorFault("climate", err)
		fault.Log(r.logger, "climate read failed", err, "sensor", "dht22")
		return Absent(Temperature, err), Absent(Humidity, err)
	}
	return Number(Temperature, res.temp), Number(Humidity, res.hum)
}

func (r *Reader) readGas(ctx context.Context) (Sample, Sample, Sample) {
	type result struct {
		reading GasReading
		err     error
	}
	res, err := bounded(ctx, &r.gasBusy, r.timeout, func() result {
		g, err := r.gas.ReadGas()
		return result{g, err}
	})
	if err == nil {
		err = res.err
	}
	if err != nil {
		err = asSensorFault("gas", err)
		fault.Log(r.logger, "gas read failed", err, "sensor", "mq2")
		return Absent(LPG, err), Absent(CO, err), Absent(Smoke, err)
	}
	return Number(LPG, res.reading.LPG), Number(CO, res.reading.CO), Number(Smoke, res.reading.Smoke)
}

func (r *Reader) readMotion() Sample {
	detected := r.motion.MotionDetected()
	var err error
	if detected {
		err = r.indicator.On()
	} else {
		err = r.indicator.Off()
	}
	if err != nil {
		r.logger.Debug("indicator update failed", "motion", detected, "error", err)
	}
	return Flag(Motion, detected)
}

// bounded runs fn in its own goroutine and waits at most timeout for it.
// busy is held until fn returns; while a timed-out call is still running,
// bounded refuses to start another one and returns ErrReadBusy.
func bounded[T any](ctx context.Context, busy *atomic.Bool, timeout time.Duration, fn func() T) (T, error) {
	var zero T
	if !busy.CompareAndSwap(false, true) {
		return zero, ErrReadBusy
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	go func() {
		v := fn()
		busy.Store(false)
		done <- v
	}()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w after %v", ErrReadTimeout, timeout)
	}
}

// asSensorFault makes sure err classifies as a sensor fault.
func asSensorFault(family string, err error) error {
	if fault.Classify(err).Kind == "sensor_fault" {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrSensorFault, family, err)
}
