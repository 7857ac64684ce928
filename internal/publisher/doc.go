// Package publisher runs the sensor-to-MQTT publish loop.
//
// Each cycle resets the indicator, reads every sensor, assembles a telemetry
// message and passes it through the validity gate. Messages that pass are
// encoded and published. The loop sleeps for the configured interval only
// after a successful publish; gate and publish failures start the next cycle
// immediately with fresh sensor data.
//
// Stop conditions are checked between cycles only: context cancellation, the
// configured publish count, or the connection manager signalling done.
package publisher
