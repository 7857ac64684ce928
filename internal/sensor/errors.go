package sensor

import (
	"errors"

	"github.com/nerrad567/envsensor/internal/fault"
)

// Sensor errors. All of them wrap fault.ErrSensorFault so the fault policy
// classifies them as recoverable local faults.
var (
	// ErrSensorFault is the generic cause of an absent sample.
	ErrSensorFault = fault.ErrSensorFault

	// ErrReadTimeout is returned when a driver did not answer within the read timeout.
	ErrReadTimeout = wrap("read timed out")

	// ErrReadBusy is returned while an earlier timed-out read of the same
	// driver has not returned yet.
	ErrReadBusy = wrap("previous read still in progress")

	// ErrInvalidRatio is returned when the gas sensor Rs/Ro ratio cannot be used.
	ErrInvalidRatio = wrap("invalid gas calibration ratio")

	// ErrNotCalibrated is returned when the gas sensor is read before calibration.
	ErrNotCalibrated = wrap("gas sensor not calibrated")

	// ErrMissingDriver is returned by NewReader when a required driver is nil.
	ErrMissingDriver = errors.New("sensor: missing driver")
)

type sensorError struct {
	msg string
}

func (e *sensorError) Error() string { return "sensor: " + e.msg }

func (e *sensorError) Unwrap() error { return fault.ErrSensorFault }

func wrap(msg string) error {
	return &sensorError{msg: msg}
}
