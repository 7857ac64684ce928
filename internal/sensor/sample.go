package sensor

import "fmt"

// Kind identifies one physical quantity.
type Kind int

// The seven quantities published in every telemetry message.
const (
	Temperature Kind = iota
	Humidity
	LPG
	CO
	Smoke
	Light
	Motion

	numKinds
)

// Kinds lists every Kind in publish order.
var Kinds = [numKinds]Kind{Temperature, Humidity, LPG, CO, Smoke, Light, Motion}

// String returns the wire name of the kind, as used in the telemetry data object.
func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temp"
	case Humidity:
		return "humidity"
	case LPG:
		return "lpg"
	case CO:
		return "co"
	case Smoke:
		return "smoke"
	case Light:
		return "light"
	case Motion:
		return "motion"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sample is one reading of one quantity.
//
// A sample is either present (Err == nil) or absent with a cause.
// Numeric kinds use Value, boolean kinds use State.
type Sample struct {
	Kind  Kind
	Value float64
	State bool
	Err   error
}

// Present reports whether the sample holds a value.
func (s Sample) Present() bool {
	return s.Err == nil
}

// Number returns a present numeric sample.
func Number(kind Kind, v float64) Sample {
	return Sample{Kind: kind, Value: v}
}

// Flag returns a present boolean sample.
func Flag(kind Kind, v bool) Sample {
	return Sample{Kind: kind, State: v}
}

// Absent returns an absent sample. A nil cause is replaced with ErrSensorFault
// so that absence is never silent.
func Absent(kind Kind, cause error) Sample {
	if cause == nil {
		cause = fmt.Errorf("%w: %s: no cause reported", ErrSensorFault, kind)
	}
	return Sample{Kind: kind, Err: cause}
}

// Samples holds one sample per Kind, indexed by Kind.
type Samples [numKinds]Sample

// Get returns the sample for k.
func (s Samples) Get(k Kind) Sample {
	if k < 0 || k >= numKinds {
		return Absent(k, fmt.Errorf("%w: unknown kind %d", ErrSensorFault, int(k)))
	}
	return s[k]
}
