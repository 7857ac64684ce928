package sensor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// MQ-2 characteristic curves: {log10(x0 ppm), log10(y0 Rs/Ro), slope}.
// Points taken from the MQ-2 datasheet sensitivity chart.
var (
	lpgCurve   = curve{2.3, 0.21, -0.47}
	coCurve    = curve{2.3, 0.72, -0.34}
	smokeCurve = curve{2.3, 0.53, -0.44}
)

type curve [3]float64

// ppm converts an Rs/Ro ratio into a concentration using the curve.
func (c curve) ppm(ratio float64) float64 {
	return math.Pow(10, (math.Log10(ratio)-c[1])/c[2]+c[0])
}

// GasConfig configures the MQ-2 resistance computation.
type GasConfig struct {
	// LoadResistance is the board load resistor in kOhm.
	LoadResistance float64

	// CleanAirFactor is Rs/Ro in clean air (9.83 for MQ-2).
	CleanAirFactor float64

	// CalibrationSamples is the number of reads averaged to compute Ro.
	CalibrationSamples int

	// CalibrationInterval is the pause between calibration reads.
	CalibrationInterval time.Duration

	// ReadSamples is the number of reads averaged per measurement.
	ReadSamples int

	// ReadInterval is the pause between measurement reads.
	ReadInterval time.Duration
}

// DefaultGasConfig returns the usual MQ-2 breakout settings.
func DefaultGasConfig() GasConfig {
	return GasConfig{
		LoadResistance:      5,
		CleanAirFactor:      9.83,
		CalibrationSamples:  50,
		CalibrationInterval: 500 * time.Millisecond,
		ReadSamples:         5,
		ReadInterval:        50 * time.Millisecond,
	}
}

// GasReading holds the three concentrations derived from one measurement.
type GasReading struct {
	LPG   float64
	CO    float64
	Smoke float64
}

// GasSensor turns ADC fractions into MQ-2 gas concentrations.
//
// Thread Safety: Calibrate and ReadGas may be called from different goroutines.
type GasSensor struct {
	adc   ADC
	cfg   GasConfig
	sleep func(time.Duration)

	mu sync.RWMutex
	ro float64
}

// NewGasSensor creates an uncalibrated gas sensor on top of adc.
// Zero-valued config fields take their defaults.
func NewGasSensor(adc ADC, cfg GasConfig) *GasSensor {
	def := DefaultGasConfig()
	if cfg.LoadResistance <= 0 {
		cfg.LoadResistance = def.LoadResistance
	}
	if cfg.CleanAirFactor <= 0 {
		cfg.CleanAirFactor = def.CleanAirFactor
	}
	if cfg.CalibrationSamples <= 0 {
		cfg.CalibrationSamples = def.CalibrationSamples
	}
	if cfg.ReadSamples <= 0 {
		cfg.ReadSamples = def.ReadSamples
	}
	return &GasSensor{
		adc:   adc,
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// SetRo sets a known clean-air resistance, skipping calibration.
func (g *GasSensor) SetRo(ro float64) {
	g.mu.Lock()
	g.ro = ro
	g.mu.Unlock()
}

// Ro returns the calibrated clean-air resistance (0 if not calibrated).
func (g *GasSensor) Ro() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ro
}

// Calibrate measures Ro in clean air. It must run once before ReadGas.
func (g *GasSensor) Calibrate(ctx context.Context) error {
	rs, err := g.average(ctx, g.cfg.CalibrationSamples, g.cfg.CalibrationInterval)
	if err != nil {
		return fmt.Errorf("calibrating gas sensor: %w", err)
	}

	ro := rs / g.cfg.CleanAirFactor
	if ro <= 0 || math.IsNaN(ro) || math.IsInf(ro, 0) {
		return fmt.Errorf("calibrating gas sensor: %w: ro=%v", ErrInvalidRatio, ro)
	}

	g.SetRo(ro)
	return nil
}

// ReadGas takes one averaged measurement and converts it to concentrations.
// All three values share one ratio, so they fail together.
func (g *GasSensor) ReadGas() (GasReading, error) {
	ro := g.Ro()
	if ro <= 0 {
		return GasReading{}, ErrNotCalibrated
	}

	rs, err := g.average(context.Background(), g.cfg.ReadSamples, g.cfg.ReadInterval)
	if err != nil {
		return GasReading{}, err
	}

	return readingForRatio(rs / ro)
}

func readingForRatio(ratio float64) (GasReading, error) {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return GasReading{}, fmt.Errorf("%w: rs/ro=%v", ErrInvalidRatio, ratio)
	}
	return GasReading{
		LPG:   lpgCurve.ppm(ratio),
		CO:    coCurve.ppm(ratio),
		Smoke: smokeCurve.ppm(ratio),
	}, nil
}

// average reads n resistances, pausing interval between them.
func (g *GasSensor) average(ctx context.Context, n int, interval time.Duration) (float64, error) {
	var sum float64
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rs, err := g.resistance()
		if err != nil {
			return 0, err
		}
		sum += rs
		if i < n-1 && interval > 0 {
			g.sleep(interval)
		}
	}
	return sum / float64(n), nil
}

// resistance converts one ADC fraction into the sensor resistance Rs (kOhm).
func (g *GasSensor) resistance() (float64, error) {
	frac, err := g.adc.ReadFraction()
	if err != nil {
		return 0, fmt.Errorf("%w: adc: %w", ErrSensorFault, err)
	}
	if frac <= 0 || frac > 1 {
		return 0, fmt.Errorf("%w: adc fraction %v out of range", ErrInvalidRatio, frac)
	}
	return g.cfg.LoadResistance * (1 - frac) / frac, nil
}
