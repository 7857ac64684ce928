package connection

import "errors"

var (
	// ErrNotConnected is returned by Publish outside the Connected state.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrInvalidState is returned by Connect when the manager is not Disconnected.
	ErrInvalidState = errors.New("connection: invalid state for operation")
)
