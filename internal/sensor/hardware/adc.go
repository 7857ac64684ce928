package hardware

import (
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

// sampleReader is the part of analog.PinADC the ADC uses.
type sampleReader interface {
	Read() (analog.Sample, error)
}

// ADC reads one ADS1115 channel as a fraction of the reference voltage.
type ADC struct {
	pin  sampleReader
	vref physic.ElectricPotential
	halt func() error
}

// OpenADS1115 opens channel (0..3) of an ADS1115 at addr on bus.
// vref is the sensor supply voltage in volts.
func OpenADS1115(bus i2c.Bus, addr uint16, channel int, vref float64) (*ADC, error) {
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		return nil, fmt.Errorf("opening ads1115 at %#x: %w", addr, err)
	}

	fullScale := volts(vref)
	pin, err := dev.PinForChannel(ads1x15.Channel(channel), fullScale, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("opening ads1115 channel %d: %w", channel, err)
	}

	return &ADC{pin: pin, vref: fullScale, halt: pin.Halt}, nil
}

func volts(v float64) physic.ElectricPotential {
	return physic.ElectricPotential(v * float64(physic.Volt))
}

// ReadFraction returns the measured voltage divided by the reference.
func (a *ADC) ReadFraction() (float64, error) {
	s, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("reading ads1115: %w", err)
	}
	return float64(s.V) / float64(a.vref), nil
}

// Close stops the channel.
func (a *ADC) Close() error {
	if a.halt == nil {
		return nil
	}
	return a.halt()
}
