package fault

import "errors"

// Sentinel errors for the envsensor fault taxonomy.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSensorFault is returned when a single sensor family could not be read.
	ErrSensorFault = errors.New("fault: sensor read failed")

	// ErrValidityGate is returned when a message lacks a required field.
	ErrValidityGate = errors.New("fault: validity gate failed")

	// ErrPublish is returned when the broker or transport rejected a publish.
	ErrPublish = errors.New("fault: publish failed")

	// ErrConnectionInterrupted is reported when the MQTT session dropped.
	ErrConnectionInterrupted = errors.New("fault: connection interrupted")

	// ErrResubscriptionRejected is returned when the broker refused to restore
	// a previously held subscription. It is the only fatal fault.
	ErrResubscriptionRejected = errors.New("fault: resubscription rejected")
)
