package hardware

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
)

// Board holds every opened driver.
type Board struct {
	Climate *IIOClimate
	ADC     *ADC
	Light   *LightSensor
	Motion  *MotionSensor
	LED     *LED

	bus i2c.BusCloser
}

// Open initialises the periph host and opens every sensor described by cfg.
//
// Parameters:
//   - cfg: Sensor wiring from config.yaml
//
// Returns:
//   - *Board: Opened drivers; Close releases the I²C bus and LED
//   - error: ErrHostInit, ErrPinNotFound or a device error
func Open(cfg config.SensorsConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostInit, err)
	}
	return openBoard(cfg, pinByName, i2creg.Open)
}

// openBoard opens every driver. On failure everything opened so far is
// released before returning.
func openBoard(
	cfg config.SensorsConfig,
	pin func(name string) (gpio.PinIO, error),
	openBus func(name string) (i2c.BusCloser, error),
) (*Board, error) {
	b := &Board{Climate: NewIIOClimate(cfg.DHT.Device)}
	if err := b.open(cfg, pin, openBus); err != nil {
		if closeErr := b.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, err
	}
	return b, nil
}

func (b *Board) open(
	cfg config.SensorsConfig,
	pin func(name string) (gpio.PinIO, error),
	openBus func(name string) (i2c.BusCloser, error),
) error {
	lightPin, err := pin(cfg.Light.Pin)
	if err != nil {
		return err
	}
	if b.Light, err = NewLightSensor(lightPin); err != nil {
		return err
	}

	motionPin, err := pin(cfg.Motion.Pin)
	if err != nil {
		return err
	}
	if b.Motion, err = NewMotionSensor(motionPin); err != nil {
		return err
	}

	ledPin, err := pin(cfg.Motion.IndicatorPin)
	if err != nil {
		return err
	}
	if b.LED, err = NewLED(ledPin); err != nil {
		return err
	}

	// Empty name opens the first bus, I²C-1 on a Pi.
	if b.bus, err = openBus(cfg.Gas.I2CBus); err != nil {
		return fmt.Errorf("opening i2c bus %q: %w", cfg.Gas.I2CBus, err)
	}
	b.ADC, err = OpenADS1115(b.bus, cfg.Gas.Address, cfg.Gas.Channel, cfg.Gas.VRef)
	return err
}

// Close turns the LED off and releases the ADC and the I²C bus.
func (b *Board) Close() error {
	var errs []error
	if b.LED != nil {
		errs = append(errs, b.LED.Off())
	}
	if b.ADC != nil {
		errs = append(errs, b.ADC.Close())
	}
	if b.bus != nil {
		errs = append(errs, b.bus.Close())
	}
	return errors.Join(errs...)
}
