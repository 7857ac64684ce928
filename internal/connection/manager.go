package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/envsensor/internal/fault"
	"github.com/nerrad567/envsensor/internal/infrastructure/mqtt"
)

// Transport is the MQTT client the Manager drives.
// Implemented by *mqtt.Client.
type Transport interface {
	Connect(ctx context.Context) (mqtt.ConnectResult, error)
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) (byte, error)
	ResubscribeExisting(done func(results map[string]*byte)) error
	SetListener(l mqtt.Listener)
	Close() error
}

// connAccepted is the CONNACK return code for an accepted connection.
const connAccepted byte = 0

// Recorder receives state transitions for diagnostics. Record must not block.
type Recorder interface {
	Record(state, detail string)
}

// Options configures a Manager.
type Options struct {
	// QoS for publish and subscribe; 1 (at-least-once) in normal operation.
	QoS byte

	// ReceiveTarget closes Done once this many messages have been received
	// on subscribed topics. 0 disables the target.
	ReceiveTarget int64

	Recorder Recorder
	Logger   *slog.Logger
}

// Manager tracks the connection state machine and the shared counters the
// publish loop reads.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Transport callbacks and the
//     publish loop run on different goroutines.
type Manager struct {
	transport Transport
	qos       byte
	target    int64
	recorder  Recorder
	logger    *slog.Logger

	mu    sync.RWMutex
	state State

	received atomic.Int64

	// resubGen identifies the latest resubscribe; older completions are ignored.
	resubGen atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error
}

// New creates a Manager and registers it as the transport's listener.
func New(transport Transport, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		transport: transport,
		qos:       opts.QoS,
		target:    opts.ReceiveTarget,
		recorder:  opts.Recorder,
		logger:    logger.With("component", "connection"),
		state:     Disconnected,
		done:      make(chan struct{}),
	}
	transport.SetListener(m)
	return m
}

// Connect opens the session and blocks until the broker acknowledges it or
// the attempt fails.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.transition(Disconnected, Connecting, "") {
		return fmt.Errorf("%w: connect from %s", ErrInvalidState, m.State())
	}

	res, err := m.transport.Connect(ctx)
	if err != nil {
		m.transition(Connecting, Disconnected, err.Error())
		return fmt.Errorf("connecting: %w", err)
	}

	m.transition(Connecting, Connected, fmt.Sprintf("session_present=%t", res.SessionPresent))
	m.logger.Info("connected",
		"return_code", res.ReturnCode,
		"session_present", res.SessionPresent,
	)
	return nil
}

// Publish sends payload with the configured QoS.
//
// It never panics on transport trouble; every failure wraps fault.ErrPublish.
// Outside the Connected state it also wraps ErrNotConnected.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte) error {
	switch s := m.State(); s {
	case Connected:
	case Rejected:
		return fmt.Errorf("%w: %w", fault.ErrPublish, fault.ErrResubscriptionRejected)
	default:
		return fmt.Errorf("%w: %w (state %s)", fault.ErrPublish, ErrNotConnected, s)
	}

	if err := m.transport.Publish(ctx, topic, payload, m.qos, false); err != nil {
		return fmt.Errorf("%w: %w", fault.ErrPublish, err)
	}
	return nil
}

// Subscribe subscribes to topic and counts every message received on it.
// The topic is restored by resubscription when a resume loses the session.
func (m *Manager) Subscribe(topic string) error {
	granted, err := m.transport.Subscribe(topic, m.qos, m.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	m.logger.Info("subscribed", "topic", topic, "qos", granted)
	return nil
}

// handleMessage runs on a transport goroutine.
func (m *Manager) handleMessage(topic string, payload []byte) error {
	n := m.received.Add(1)
	m.logger.Debug("message received",
		"topic", topic,
		"bytes", len(payload),
		"received", n,
	)
	if m.target > 0 && n == m.target {
		m.logger.Info("received target reached", "received", n)
		m.finish(nil)
	}
	return nil
}

// OnInterrupted is called by the transport when the session drops.
// The transport reconnects on its own; the manager only records the fact.
func (m *Manager) OnInterrupted(err error) {
	m.resubGen.Add(1)
	cause := fmt.Errorf("%w: %w", fault.ErrConnectionInterrupted, err)
	if !m.set(Interrupted, err.Error()) {
		return
	}
	fault.Log(m.logger, "connection interrupted", cause)
}

// OnResumed is called by the transport after it reconnected.
//
// Without a preserved session the broker has dropped the subscriptions, so
// resubscription is started; its result arrives in onResubscribeComplete.
func (m *Manager) OnResumed(returnCode byte, sessionPresent bool) {
	m.logger.Info("connection resumed",
		"return_code", returnCode,
		"session_present", sessionPresent,
	)

	if returnCode != connAccepted {
		m.logger.Warn("resume not accepted, skipping resubscribe", "return_code", returnCode)
		return
	}
	if !m.set(Connected, fmt.Sprintf("session_present=%t", sessionPresent)) || sessionPresent {
		return
	}

	if !m.transition(Connected, Resubscribing, "session_present=false") {
		return
	}
	gen := m.resubGen.Add(1)
	err := m.transport.ResubscribeExisting(func(results map[string]*byte) {
		m.onResubscribeComplete(gen, results)
	})
	if err != nil {
		// The connection dropped again; the next resume retries.
		m.logger.Warn("resubscribe not started", "error", err)
	}
}

// onResubscribeComplete receives the granted QoS per topic. A nil entry
// means the broker rejected the topic. Results of a resubscribe that was
// superseded by a later interruption or resume are dropped.
func (m *Manager) onResubscribeComplete(gen uint64, results map[string]*byte) {
	if gen != m.resubGen.Load() {
		m.logger.Debug("stale resubscribe result ignored", "generation", gen)
		return
	}

	var rejected []string
	for topic, qos := range results {
		if qos == nil {
			rejected = append(rejected, topic)
			continue
		}
		m.logger.Info("resubscribed", "topic", topic, "qos", *qos)
	}

	if len(rejected) == 0 {
		m.transition(Resubscribing, Connected, fmt.Sprintf("resubscribed=%d", len(results)))
		return
	}

	sort.Strings(rejected)
	err := fmt.Errorf("%w: %s", fault.ErrResubscriptionRejected, strings.Join(rejected, ", "))
	m.set(Rejected, err.Error())
	fault.Log(m.logger, "server rejected resubscribe", err)
	m.finish(err)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReceivedCount returns the number of messages received on subscribed topics.
func (m *Manager) ReceivedCount() int64 {
	return m.received.Load()
}

// Done is closed when the receive target is reached or the session is
// rejected. Err tells the two apart.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the fatal error after Done is closed, or nil.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// Close disconnects the transport.
func (m *Manager) Close() error {
	err := m.transport.Close()
	m.set(Disconnected, "closed")
	return err
}

func (m *Manager) finish(err error) {
	m.doneOnce.Do(func() {
		m.errMu.Lock()
		m.err = err
		m.errMu.Unlock()
		close(m.done)
	})
}

// set moves to state unless the current state is terminal.
func (m *Manager) set(to State, detail string) bool {
	m.mu.Lock()
	from := m.state
	if from.Terminal() {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()

	m.record(from, to, detail)
	return true
}

// transition moves from one specific state to another.
func (m *Manager) transition(from, to State, detail string) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()

	m.record(from, to, detail)
	return true
}

func (m *Manager) record(from, to State, detail string) {
	m.logger.Debug("state changed", "from", from.String(), "to", to.String())
	if m.recorder != nil {
		m.recorder.Record(to.String(), detail)
	}
}
