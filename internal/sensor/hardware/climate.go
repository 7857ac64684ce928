package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIO attribute files exposed by the dht11 kernel driver, in milli-units.
const (
	tempFile     = "in_temp_input"
	humidityFile = "in_humidityrelative_input"
)

// IIOClimate reads a DHT22 through the kernel dht11 IIO driver.
type IIOClimate struct {
	dir string
}

// NewIIOClimate uses the IIO device directory dir,
// e.g. /sys/bus/iio/devices/iio:device0.
func NewIIOClimate(dir string) *IIOClimate {
	return &IIOClimate{dir: dir}
}

// ReadClimate returns temperature (°C) and relative humidity (%).
func (c *IIOClimate) ReadClimate() (float64, float64, error) {
	temp, err := c.readMilli(tempFile)
	if err != nil {
		return 0, 0, err
	}
	hum, err := c.readMilli(humidityFile)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

func (c *IIOClimate) readMilli(name string) (float64, error) {
	b, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrClimateRead, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrClimateRead, name, err)
	}
	return v / 1000, nil
}
