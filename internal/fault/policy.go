package fault

import (
	"errors"
	"log/slog"
)

// Class describes how far a fault is allowed to travel.
type Class int

const (
	// ClassUnknown is used for errors outside the taxonomy.
	ClassUnknown Class = iota
	// ClassLocal faults are caused on the device and self-correct on the next read.
	ClassLocal
	// ClassRemote faults come from the broker or the network path to it.
	ClassRemote
	// ClassTransport faults are handled entirely by the MQTT transport.
	ClassTransport
	// ClassFatal faults stop the process.
	ClassFatal
)

// String returns the log representation of the class.
func (c Class) String() string {
	switch c {
	case ClassLocal:
		return "recoverable_local"
	case ClassRemote:
		return "recoverable_remote"
	case ClassTransport:
		return "transport_managed"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Action is what the publish loop does after a fault.
type Action int

const (
	// ActionContinue keeps going with the current cycle.
	ActionContinue Action = iota
	// ActionRetryNow starts the next cycle immediately without sleeping.
	ActionRetryNow
	// ActionNone means no core-level corrective action.
	ActionNone
	// ActionTerminate stops the process with a non-zero exit status.
	ActionTerminate
)

// String returns the log representation of the action.
func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionRetryNow:
		return "retry_now"
	case ActionNone:
		return "none"
	case ActionTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Decision is the outcome of classifying an error.
type Decision struct {
	Kind   string
	Class  Class
	Action Action
}

// Classify maps err onto the fault table.
//
// Unknown errors are treated as recoverable remote faults so that an
// unexpected transport error never terminates the loop.
func Classify(err error) Decision {
	switch {
	case err == nil:
		return Decision{Kind: "none", Class: ClassUnknown, Action: ActionContinue}
	case errors.Is(err, ErrResubscriptionRejected):
		return Decision{Kind: "resubscription_rejected", Class: ClassFatal, Action: ActionTerminate}
	case errors.Is(err, ErrSensorFault):
		return Decision{Kind: "sensor_fault", Class: ClassLocal, Action: ActionContinue}
	case errors.Is(err, ErrValidityGate):
		return Decision{Kind: "validity_gate", Class: ClassLocal, Action: ActionRetryNow}
	case errors.Is(err, ErrConnectionInterrupted):
		return Decision{Kind: "connection_interrupted", Class: ClassTransport, Action: ActionNone}
	case errors.Is(err, ErrPublish):
		return Decision{Kind: "publish_failure", Class: ClassRemote, Action: ActionRetryNow}
	default:
		return Decision{Kind: "unclassified", Class: ClassRemote, Action: ActionRetryNow}
	}
}

// Fatal reports whether err must terminate the process.
func Fatal(err error) bool {
	return Classify(err).Class == ClassFatal
}

// Log writes the single diagnostic line every fault produces.
func Log(logger *slog.Logger, msg string, err error, args ...any) {
	if logger == nil || err == nil {
		return
	}
	d := Classify(err)
	attrs := append([]any{
		"fault", d.Kind,
		"class", d.Class.String(),
		"action", d.Action.String(),
		"error", err,
	}, args...)

	if d.Class == ClassFatal {
		logger.Error(msg, attrs...)
		return
	}
	logger.Warn(msg, attrs...)
}
