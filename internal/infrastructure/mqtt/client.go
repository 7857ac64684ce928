package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with a persistent session and an owned
// reconnect loop.
//
// Paho's built-in auto-reconnect hides the CONNACK of a resumed connection.
// Client instead reconnects itself with exponential backoff so every resume
// reports its return code and session-present flag to the Listener.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Listener callbacks are delivered in order from a single goroutine.
type Client struct {
	cfg       config.MQTTConfig
	buildOpts optionsFunc
	newClient clientFactory

	// client is the paho client for the current connection attempt.
	client   pahomqtt.Client
	clientMu sync.RWMutex

	// subscriptions tracks subscriptions for ResubscribeExisting.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	listener   Listener
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	newBackOff func() backoff.BackOff
	lost       chan error
	supervise  sync.Once
	closed     atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// clientFactory creates a paho client. Replaced in tests.
type clientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Listener receives connection lifecycle events.
//
// Callbacks must not block; they run on the reconnect goroutine.
type Listener interface {
	// OnInterrupted is called once when an established connection drops.
	OnInterrupted(err error)

	// OnResumed is called after a successful reconnect with the CONNACK
	// return code and session-present flag.
	OnResumed(returnCode byte, sessionPresent bool)
}

// ConnectResult is the outcome of a successful CONNECT.
type ConnectResult struct {
	ReturnCode     byte
	SessionPresent bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for resubscription.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// connAcker exposes CONNACK fields. Implemented by *pahomqtt.ConnectToken.
type connAcker interface {
	ReturnCode() byte
	SessionPresent() bool
}

// NewClient prepares a client for the configured endpoint and credential mode.
//
// No network activity happens until Connect is called.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Client ready for Connect
//   - error: If the credential material cannot be loaded
func NewClient(cfg config.MQTTConfig) (*Client, error) {
	buildOpts, err := newOptionsFunc(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, buildOpts, pahomqtt.NewClient), nil
}

func newClient(cfg config.MQTTConfig, buildOpts optionsFunc, factory clientFactory) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	initial := time.Duration(cfg.Reconnect.InitialDelay) * time.Second
	maxDelay := time.Duration(cfg.Reconnect.MaxDelay) * time.Second

	return &Client{
		cfg:           cfg,
		buildOpts:     buildOpts,
		newClient:     factory,
		subscriptions: make(map[string]subscription),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			if initial > 0 {
				b.InitialInterval = initial
			}
			if maxDelay > 0 {
				b.MaxInterval = maxDelay
			}
			b.MaxElapsedTime = 0 // retry until Close
			return b
		},
		lost:   make(chan error, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect performs the initial connection and blocks until the broker
// acknowledges it, the timeout elapses, or ctx is cancelled.
//
// After a successful Connect, dropped connections are re-established in the
// background and reported to the Listener.
//
// Returns:
//   - ConnectResult: CONNACK return code and session-present flag
//   - error: ErrConnectionFailed wrapping the cause
func (c *Client) Connect(ctx context.Context) (ConnectResult, error) {
	if c.closed.Load() {
		return ConnectResult{}, ErrClosed
	}

	res, err := c.dial(ctx)
	if err != nil {
		return ConnectResult{}, err
	}

	c.supervise.Do(func() {
		c.wg.Add(1)
		go c.superviseConnection()
	})

	return res, nil
}

// dial runs one connection attempt with freshly built options.
func (c *Client) dial(ctx context.Context) (ConnectResult, error) {
	opts, err := c.buildOpts(ctx)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	pc := c.newClient(opts)

	// A resumed session may deliver before ResubscribeExisting runs.
	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		pc.AddRoute(sub.topic, c.wrapHandler(sub.handler))
	}
	c.subMu.RUnlock()

	token := pc.Connect()
	if err := waitToken(ctx, token, defaultConnectTimeout); err != nil {
		return ConnectResult{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	var res ConnectResult
	if ack, ok := token.(connAcker); ok {
		res = ConnectResult{ReturnCode: ack.ReturnCode(), SessionPresent: ack.SessionPresent()}
	}

	c.clientMu.Lock()
	c.client = pc
	c.clientMu.Unlock()

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return res, nil
}

// handleConnectionLost is invoked by paho when an established connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	select {
	case c.lost <- err:
	default:
		// a loss is already queued
	}
}

// superviseConnection emits interruption and resume events in order and
// drives reconnection between them.
func (c *Client) superviseConnection() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case err := <-c.lost:
			if c.closed.Load() {
				return
			}
			if l := c.getListener(); l != nil {
				l.OnInterrupted(err)
			}

			res, ok := c.reconnect()
			if !ok {
				return
			}

			if l := c.getListener(); l != nil {
				l.OnResumed(res.ReturnCode, res.SessionPresent)
			}
		}
	}
}

// reconnect retries dial with exponential backoff until it succeeds or the
// client is closed.
func (c *Client) reconnect() (ConnectResult, bool) {
	var res ConnectResult

	operation := func() error {
		r, err := c.dial(c.ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	}

	notify := func(err error, next time.Duration) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnect attempt failed",
				"error", err,
				"retry_in", next,
			)
		}
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), c.ctx), notify); err != nil {
		return ConnectResult{}, false
	}

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT reconnected",
			"return_code", res.ReturnCode,
			"session_present", res.SessionPresent,
		)
	}
	return res, true
}

// Close stops reconnection and disconnects from the broker.
//
// It performs:
//  1. Cancels any reconnect in progress
//  2. Disconnects with a quiesce period for pending operations
//  3. Waits for the reconnect goroutine to exit
//
// Returns:
//   - error: Always nil; a connection that is already gone is not an error
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	if pc := c.current(); pc != nil && pc.IsConnectionOpen() {
		pc.Disconnect(defaultDisconnectQuiesce)
	}

	c.wg.Wait()

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if !c.connected {
		return false
	}
	pc := c.current()
	return pc != nil && pc.IsConnectionOpen()
}

// current returns the paho client of the latest connection attempt.
func (c *Client) current() pahomqtt.Client {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client
}

// SetListener sets the receiver of interruption and resume events.
func (c *Client) SetListener(l Listener) {
	c.callbackMu.Lock()
	c.listener = l
	c.callbackMu.Unlock()
}

func (c *Client) getListener() Listener {
	c.callbackMu.RLock()
	defer c.callbackMu.RUnlock()
	return c.listener
}

// SetLogger sets a logger for reconnect and handler diagnostics.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

// waitToken waits for a paho token, the timeout, or ctx, whichever is first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
