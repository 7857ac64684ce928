package hardware

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LightSensor reads a photoresistor module's digital output.
// The module pulls DO low when lit.
type LightSensor struct {
	pin gpio.PinIO
}

// NewLightSensor configures pin as an input.
func NewLightSensor(pin gpio.PinIO) (*LightSensor, error) {
	if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configuring light pin %s: %w", pin, err)
	}
	return &LightSensor{pin: pin}, nil
}

// LightLevel returns 0 for a low input and 1 for a high one.
func (l *LightSensor) LightLevel() float64 {
	if l.pin.Read() == gpio.High {
		return 1
	}
	return 0
}

// MotionSensor reads a PIR module output.
type MotionSensor struct {
	pin gpio.PinIO
}

// NewMotionSensor configures pin as a pulled-down input.
func NewMotionSensor(pin gpio.PinIO) (*MotionSensor, error) {
	if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configuring motion pin %s: %w", pin, err)
	}
	return &MotionSensor{pin: pin}, nil
}

// MotionDetected reports whether the PIR output is high.
func (m *MotionSensor) MotionDetected() bool {
	return m.pin.Read() == gpio.High
}

// LED drives an indicator LED.
type LED struct {
	pin gpio.PinIO
}

// NewLED configures pin as an output, initially off.
func NewLED(pin gpio.PinIO) (*LED, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configuring led pin %s: %w", pin, err)
	}
	return &LED{pin: pin}, nil
}

// On lights the LED.
func (l *LED) On() error { return l.pin.Out(gpio.High) }

// Off turns the LED off.
func (l *LED) Off() error { return l.pin.Out(gpio.Low) }

// pinByName resolves a GPIO name such as "GPIO23".
func pinByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return p, nil
}
