package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
)

// fakeToken implements pahomqtt.Token plus the CONNACK and SUBACK accessors.
type fakeToken struct {
	done           chan struct{}
	err            error
	returnCode     byte
	sessionPresent bool
	result         map[string]byte
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{}   { return t.done }
func (t *fakeToken) Error() error            { return t.err }
func (t *fakeToken) ReturnCode() byte        { return t.returnCode }
func (t *fakeToken) SessionPresent() bool    { return t.sessionPresent }
func (t *fakeToken) Result() map[string]byte { return t.result }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// connectOutcome scripts the result of one fake CONNECT.
type connectOutcome struct {
	err            error
	sessionPresent bool
}

// fakePahoClient implements pahomqtt.Client against in-memory state.
type fakePahoClient struct {
	broker *fakeBroker
	opts   *pahomqtt.ClientOptions
	result connectOutcome

	mu           sync.Mutex
	open         bool
	disconnected bool
	published    []published
	subscribed   []string
	routes       map[string]pahomqtt.MessageHandler
}

func (c *fakePahoClient) IsConnected() bool { return c.IsConnectionOpen() }

func (c *fakePahoClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakePahoClient) Connect() pahomqtt.Token {
	tok := completedToken(c.result.err)
	if c.result.err == nil {
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
		tok.sessionPresent = c.result.sessionPresent
	} else {
		tok.returnCode = 5
	}
	return tok
}

func (c *fakePahoClient) Disconnect(uint) {
	c.mu.Lock()
	c.open = false
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakePahoClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, _ := payload.([]byte)
	c.published = append(c.published, published{topic: topic, qos: qos, payload: b})
	return completedToken(c.broker.publishErr())
}

func (c *fakePahoClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	c.subscribed = append(c.subscribed, topic)
	c.routes[topic] = callback
	c.mu.Unlock()

	tok := completedToken(nil)
	tok.result = map[string]byte{topic: c.broker.suback(topic, qos)}
	return tok
}

func (c *fakePahoClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return completedToken(errors.New("not supported"))
}

func (c *fakePahoClient) Unsubscribe(...string) pahomqtt.Token { return completedToken(nil) }

func (c *fakePahoClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	c.mu.Lock()
	c.routes[topic] = callback
	c.mu.Unlock()
}

func (c *fakePahoClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// drop simulates the broker closing the connection.
func (c *fakePahoClient) drop(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.opts.OnConnectionLost(c, err)
}

// deliver invokes the route registered for topic.
func (c *fakePahoClient) deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	handler, ok := c.routes[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	handler(c, fakeMessage{topic: topic, payload: payload})
	return true
}

func (c *fakePahoClient) subscribeCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

func (c *fakePahoClient) publishes() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

// fakeBroker is a clientFactory that scripts successive connection attempts.
type fakeBroker struct {
	mu       sync.Mutex
	clients  []*fakePahoClient
	outcomes []connectOutcome
	// failRest makes attempts beyond the scripted outcomes fail.
	failRest bool
	subacks  map[string]byte
	pubErr   error
}

func newFakeBroker(outcomes ...connectOutcome) *fakeBroker {
	return &fakeBroker{outcomes: outcomes, subacks: make(map[string]byte)}
}

func (b *fakeBroker) factory(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result connectOutcome
	switch {
	case len(b.outcomes) > 0:
		result = b.outcomes[0]
		b.outcomes = b.outcomes[1:]
	case b.failRest:
		result = connectOutcome{err: errors.New("connection refused")}
	}

	c := &fakePahoClient{
		broker: b,
		opts:   opts,
		result: result,
		routes: make(map[string]pahomqtt.MessageHandler),
	}
	b.clients = append(b.clients, c)
	return c
}

func (b *fakeBroker) latest() *fakePahoClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

func (b *fakeBroker) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *fakeBroker) setSuback(topic string, code byte) {
	b.mu.Lock()
	b.subacks[topic] = code
	b.mu.Unlock()
}

func (b *fakeBroker) suback(topic string, qos byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code, ok := b.subacks[topic]; ok {
		return code
	}
	return qos
}

func (b *fakeBroker) setPublishErr(err error) {
	b.mu.Lock()
	b.pubErr = err
	b.mu.Unlock()
}

func (b *fakeBroker) publishErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pubErr
}

// listenerEvent records one Listener callback.
type listenerEvent struct {
	interrupted    error
	resumed        bool
	returnCode     byte
	sessionPresent bool
}

type recordingListener struct {
	events chan listenerEvent
}

func newRecordingListener() *recordingListener {
	return &recordingListener{events: make(chan listenerEvent, 16)}
}

func (l *recordingListener) OnInterrupted(err error) {
	l.events <- listenerEvent{interrupted: err}
}

func (l *recordingListener) OnResumed(returnCode byte, sessionPresent bool) {
	l.events <- listenerEvent{resumed: true, returnCode: returnCode, sessionPresent: sessionPresent}
}

// recordingLogger captures log calls.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Endpoint:  "broker.test",
		ClientID:  "envsensor-test",
		Topic:     "envsensor/test",
		QoS:       1,
		KeepAlive: 6,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 5},
	}
}

// newTestClient returns a Client backed by broker with zero reconnect delay.
func newTestClient(broker *fakeBroker) *Client {
	c := newClient(testMQTTConfig(), func(context.Context) (*pahomqtt.ClientOptions, error) {
		return buildClientOptions(testMQTTConfig()), nil
	}, broker.factory)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}
