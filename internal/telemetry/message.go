package telemetry

import (
	"math"
	"strconv"
	"time"

	"github.com/nerrad567/envsensor/internal/sensor"
)

// Reading is an optional numeric value. The zero value is absent.
// It is a plain value type so a Message can be copied without sharing state.
type Reading struct {
	value float64
	ok    bool
}

// Present returns a present reading.
func Present(v float64) Reading {
	return Reading{value: v, ok: true}
}

// Value returns the value and whether it is present.
func (r Reading) Value() (float64, bool) {
	return r.value, r.ok
}

// Valid reports whether the reading is present.
func (r Reading) Valid() bool {
	return r.ok
}

// MarshalJSON encodes an absent reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.ok {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, r.value, 'g', -1, 64), nil
}

// Data holds the seven published quantities.
type Data struct {
	Temp     Reading
	Humidity Reading
	LPG      Reading
	CO       Reading
	Smoke    Reading
	Light    bool
	Motion   bool
}

// Message is one telemetry envelope. It is built fresh every cycle by
// Assemble and handled by value afterwards.
type Message struct {
	DeviceID  string
	Timestamp time.Time
	Data      Data
}

// Assemble builds a Message from one cycle of samples. It performs no I/O,
// no rounding and no unit conversion.
func Assemble(samples sensor.Samples, deviceID string, now time.Time) Message {
	return Message{
		DeviceID:  deviceID,
		Timestamp: now.UTC(),
		Data: Data{
			Temp:     numeric(samples.Get(sensor.Temperature)),
			Humidity: numeric(samples.Get(sensor.Humidity)),
			LPG:      numeric(samples.Get(sensor.LPG)),
			CO:       numeric(samples.Get(sensor.CO)),
			Smoke:    numeric(samples.Get(sensor.Smoke)),
			Light:    flag(samples.Get(sensor.Light)),
			Motion:   flag(samples.Get(sensor.Motion)),
		},
	}
}

func numeric(s sensor.Sample) Reading {
	if !s.Present() || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return Reading{}
	}
	return Present(s.Value)
}

// flag maps an absent boolean to false. Light and motion have no fault path,
// so this only matters for hand-built sample sets.
func flag(s sensor.Sample) bool {
	return s.Present() && s.State
}
