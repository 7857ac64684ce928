// Package journal records connection state transitions in SQLite.
//
// The journal is diagnostics only: it stores what happened to the MQTT
// session (connected, interrupted, resumed, rejected) and never stores
// telemetry. Writes are asynchronous and best-effort; a full buffer or a
// database error drops the event and is logged, and never blocks the
// connection manager.
package journal
