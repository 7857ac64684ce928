package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize = 64

	// writeTimeout bounds a single insert.
	writeTimeout = 2 * time.Second
)

// Options configures a Journal.
type Options struct {
	DeviceID string

	// BufferSize is the number of events queued before new ones are dropped.
	BufferSize int

	Logger *slog.Logger
}

// Stats holds journal counters.
type Stats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Journal queues state transitions and writes them from one goroutine.
//
// Thread Safety:
//   - Record is safe for concurrent use and never blocks.
type Journal struct {
	repo     Repository
	deviceID string
	logger   *slog.Logger
	now      func() time.Time

	queue chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// New creates a Journal and starts its writer goroutine.
func New(repo Repository, opts Options) *Journal {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		repo:     repo,
		deviceID: opts.DeviceID,
		logger:   logger.With("component", "journal"),
		now:      time.Now,
		queue:    make(chan Event, size),
	}

	j.wg.Add(1)
	go j.run()
	return j
}

// Record queues a state transition. It drops the event when the queue is
// full or the journal is closed.
func (j *Journal) Record(state, detail string) {
	ev := Event{
		DeviceID:  j.deviceID,
		State:     state,
		Detail:    detail,
		CreatedAt: j.now().UTC(),
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}

	select {
	case j.queue <- ev:
	default:
		j.dropped.Add(1)
		j.logger.Warn("journal queue full, event dropped", "state", state)
	}
}

func (j *Journal) run() {
	defer j.wg.Done()

	for ev := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := j.repo.Create(ctx, &ev)
		cancel()

		if err != nil {
			j.failed.Add(1)
			j.logger.Warn("journal write failed", "state", ev.State, "error", err)
			continue
		}
		j.written.Add(1)
	}
}

// Close stops accepting events and waits until queued events are written
// or ctx expires.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the journal counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Written: j.written.Load(),
		Dropped: j.dropped.Load(),
		Failed:  j.failed.Load(),
	}
}
