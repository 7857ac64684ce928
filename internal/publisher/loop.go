package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nerrad567/envsensor/internal/fault"
	"github.com/nerrad567/envsensor/internal/sensor"
	"github.com/nerrad567/envsensor/internal/telemetry"
)

var errSleepInterrupted = errors.New("publisher: sleep interrupted by connection shutdown")

// Reader supplies one set of samples per cycle.
// Implemented by *sensor.Reader.
type Reader interface {
	ResetIndicator()
	ReadAll(ctx context.Context) sensor.Samples
}

// Connection publishes encoded messages.
// Implemented by *connection.Manager.
type Connection interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Done() <-chan struct{}
	Err() error
}

// Mirror receives every successfully published message. It must not block.
type Mirror interface {
	Mirror(msg telemetry.Message)
}

// Config holds the loop parameters.
type Config struct {
	Topic    string
	DeviceID string

	// Interval is the pause after a successful publish.
	Interval time.Duration

	// Count stops the loop after this many successful publishes. 0 is unbounded.
	Count int
}

// Stats holds loop counters.
type Stats struct {
	Cycles          uint64
	Published       uint64
	GateFailures    uint64
	PublishFailures uint64
}

// Loop is the publish loop. Run it from a single goroutine.
type Loop struct {
	reader Reader
	conn   Connection
	mirror Mirror
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration, stop <-chan struct{}) error

	cycles          atomic.Uint64
	published       atomic.Uint64
	gateFailures    atomic.Uint64
	publishFailures atomic.Uint64
}

// New creates a Loop. mirror and logger may be nil.
func New(reader Reader, conn Connection, cfg Config, mirror Mirror, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		reader: reader,
		conn:   conn,
		mirror: mirror,
		cfg:    cfg,
		logger: logger.With("component", "publisher"),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Run executes cycles until a stop condition holds.
//
// Returns:
//   - error: nil on cancellation, count reached or receive target reached;
//     the connection's fatal error (fault.ErrResubscriptionRejected) otherwise
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("publish loop started",
		"topic", l.cfg.Topic,
		"device_id", l.cfg.DeviceID,
		"interval", l.cfg.Interval,
		"count", l.cfg.Count,
	)

	for {
		if stop, err := l.stopped(ctx); stop {
			return err
		}

		err := l.cycle(ctx)
		switch fault.Classify(err).Action {
		case fault.ActionTerminate:
			l.logger.Info("publish loop stopped", "reason", "fatal fault", "stats", l.Stats())
			return fmt.Errorf("publish loop: %w", err)
		case fault.ActionRetryNow:
			continue
		}

		if l.countReached() || l.cfg.Interval <= 0 {
			continue
		}
		// Cancellation and connection shutdown are picked up by the next stop check.
		_ = l.sleep(ctx, l.cfg.Interval, l.conn.Done())
	}
}

// stopped checks the stop conditions between cycles.
func (l *Loop) stopped(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		l.logger.Info("publish loop stopped", "reason", "cancelled", "stats", l.Stats())
		return true, nil
	case <-l.conn.Done():
		err := l.conn.Err()
		if err == nil {
			l.logger.Info("publish loop stopped", "reason", "receive target reached", "stats", l.Stats())
			return true, nil
		}
		fault.Log(l.logger, "publish loop stopped", err, "reason", "connection failed")
		return true, fmt.Errorf("publish loop: %w", err)
	default:
	}

	if l.countReached() {
		l.logger.Info("publish loop stopped", "reason", "count reached", "stats", l.Stats())
		return true, nil
	}
	return false, nil
}

func (l *Loop) countReached() bool {
	return l.cfg.Count > 0 && l.published.Load() >= uint64(l.cfg.Count)
}

// cycle runs one read-gate-publish pass. A nil error means the message was
// published; otherwise the error is classified by the caller.
func (l *Loop) cycle(ctx context.Context) error {
	l.cycles.Add(1)

	l.reader.ResetIndicator()
	samples := l.reader.ReadAll(ctx)
	msg := telemetry.Assemble(samples, l.cfg.DeviceID, l.now())

	if err := msg.Gate(); err != nil {
		l.gateFailures.Add(1)
		fault.Log(l.logger, "sensor failure, retrying", err, "missing", msg.Missing())
		return err
	}

	payload, err := telemetry.Encode(msg)
	if err != nil {
		err = fmt.Errorf("%w: %w", fault.ErrPublish, err)
		l.publishFailures.Add(1)
		fault.Log(l.logger, "encoding failed", err)
		return err
	}

	if err := l.conn.Publish(ctx, l.cfg.Topic, payload); err != nil {
		l.publishFailures.Add(1)
		fault.Log(l.logger, "publish failed", err, "topic", l.cfg.Topic)
		return err
	}

	n := l.published.Add(1)
	l.logger.Debug("published",
		"topic", l.cfg.Topic,
		"bytes", len(payload),
		"published", n,
	)

	if l.mirror != nil {
		l.mirror.Mirror(msg)
	}
	return nil
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:          l.cycles.Load(),
		Published:       l.published.Load(),
		GateFailures:    l.gateFailures.Load(),
		PublishFailures: l.publishFailures.Load(),
	}
}

// sleepContext waits for d, returning early when ctx is done or stop closes.
func sleepContext(ctx context.Context, d time.Duration, stop <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return errSleepInterrupted
	case <-timer.C:
		return nil
	}
}
