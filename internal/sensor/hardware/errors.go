package hardware

import "errors"

// Sentinel errors for hardware access.
var (
	// ErrHostInit is returned when the periph host drivers failed to load.
	ErrHostInit = errors.New("hardware: host init failed")

	// ErrPinNotFound is returned when a GPIO name does not resolve.
	ErrPinNotFound = errors.New("hardware: gpio pin not found")

	// ErrClimateRead is returned when the DHT22 did not produce a reading,
	// typically a checksum failure reported by the kernel as EIO.
	ErrClimateRead = errors.New("hardware: climate read failed")
)
