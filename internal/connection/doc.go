// Package connection owns the MQTT session lifecycle for envsensor.
//
// The Manager tracks an explicit state machine driven by the publish loop
// (Connect, Publish) and by transport callbacks (interruption, resume,
// resubscription completion):
//
//	Disconnected --connect--> Connecting --ack--> Connected
//	Connected --interrupt--> Interrupted --reconnect--> Connected
//	Interrupted --resume, no session--> Resubscribing --all granted--> Connected
//	Resubscribing --any rejected--> Rejected (terminal)
//
// Callbacks never block: resubscription is started on the transport and its
// result arrives through a completion callback. A rejected resubscription
// closes Done and sets Err to an error wrapping
// fault.ErrResubscriptionRejected; the process is expected to exit non-zero.
package connection
