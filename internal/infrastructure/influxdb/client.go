package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
	"github.com/nerrad567/envsensor/internal/telemetry"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 20
	defaultFlushInterval = 10 // seconds

	millisecondsPerSecond = 1000

	// measurement is the InfluxDB measurement every point is written to.
	measurement = "environment"
)

// Mirror writes published telemetry to InfluxDB.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Mirror never blocks on the network.
type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger

	mu        sync.RWMutex
	connected bool

	written atomic.Uint64
	failed  atomic.Uint64
}

// Connect creates the client, pings the server and starts the batching
// write API.
//
// Parameters:
//   - ctx: Bounds the startup ping
//   - cfg: InfluxDB configuration from config.yaml
//   - logger: Receives asynchronous write errors
//
// Returns:
//   - *Mirror: Ready for use
//   - error: ErrDisabled, or ErrConnectionFailed when the ping fails
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *slog.Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values checked positive above
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond).
			SetApplicationName("envsensor"),
	)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return newMirror(client, client.WriteAPI(cfg.Org, cfg.Bucket), logger), nil
}

// newMirror wires a write API. client may be nil in tests.
func newMirror(client influxdb2.Client, writeAPI api.WriteAPI, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mirror{
		client:    client,
		writeAPI:  writeAPI,
		logger:    logger.With("component", "influxdb"),
		connected: true,
	}

	// Errors must be drained or the write API blocks.
	go m.handleWriteErrors(writeAPI.Errors())
	return m
}

func (m *Mirror) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		m.failed.Add(1)
		m.logger.Warn("influxdb write failed", "error", err)
	}
}

// Mirror queues msg as one point. It is a no-op after Close.
func (m *Mirror) Mirror(msg telemetry.Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return
	}
	m.writeAPI.WritePoint(Point(msg))
	m.written.Add(1)
}

// Point converts msg to an InfluxDB point. Absent readings are left out
// rather than written as zero.
func Point(msg telemetry.Message) *write.Point {
	fields := map[string]any{
		"light":  msg.Data.Light,
		"motion": msg.Data.Motion,
	}
	for name, r := range map[string]telemetry.Reading{
		"temp":     msg.Data.Temp,
		"humidity": msg.Data.Humidity,
		"lpg":      msg.Data.LPG,
		"co":       msg.Data.CO,
		"smoke":    msg.Data.Smoke,
	} {
		if v, ok := r.Value(); ok {
			fields[name] = v
		}
	}

	return write.NewPoint(
		measurement,
		map[string]string{"device_id": msg.DeviceID},
		fields,
		msg.Timestamp,
	)
}

// Written returns the number of points queued.
func (m *Mirror) Written() uint64 {
	return m.written.Load()
}

// Failed returns the number of asynchronous write errors seen.
func (m *Mirror) Failed() uint64 {
	return m.failed.Load()
}

// IsConnected reports whether the mirror accepts writes.
func (m *Mirror) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// HealthCheck pings the server.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	if !m.IsConnected() || m.client == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := m.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// Close flushes pending points and closes the client. Safe to call twice.
func (m *Mirror) Close() {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.mu.Unlock()

	m.writeAPI.Flush()
	if m.client != nil {
		m.client.Close()
	}
}
