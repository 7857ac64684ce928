package mqtt

import (
	"fmt"
)

// subackFailure is the SUBACK return code for a rejected subscription.
const subackFailure = 0x80

// subscribeResulter exposes per-topic SUBACK codes.
// Implemented by *pahomqtt.SubscribeToken.
type subscribeResulter interface {
	Result() map[string]byte
}

// Subscribe registers a handler for messages on the specified topic filter.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "envsensor/+/commands"
//   - # (multi-level): "envsensor/#"
//
// The subscription is tracked so ResubscribeExisting can re-issue it after a
// resume without a persisted session.
//
// Parameters:
//   - topic: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - byte: QoS granted by the broker
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) (byte, error) {
	if err := ValidateTopicFilter(topic); err != nil {
		return 0, err
	}
	if qos > maxQoS {
		return 0, ErrInvalidQoS
	}
	if handler == nil {
		return 0, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	granted, err := c.subscribeOnce(subscription{topic: topic, qos: qos, handler: handler})
	if err != nil {
		return 0, err
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	return granted, nil
}

// subscribeOnce issues a single SUBSCRIBE and returns the granted QoS.
func (c *Client) subscribeOnce(sub subscription) (byte, error) {
	pc := c.current()
	if pc == nil {
		return 0, ErrNotConnected
	}

	token := pc.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	if err := waitToken(c.ctx, token, defaultSubscribeTimeout); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	resulter, ok := token.(subscribeResulter)
	if !ok {
		return sub.qos, nil
	}
	granted, found := resulter.Result()[sub.topic]
	if !found {
		return sub.qos, nil
	}
	if granted == subackFailure {
		return 0, fmt.Errorf("%w: broker rejected %s", ErrSubscribeFailed, sub.topic)
	}
	return granted, nil
}

// ResubscribeExisting re-issues every tracked subscription exactly once.
//
// It returns immediately; done is called from a separate goroutine with the
// granted QoS per topic. A nil entry means the broker rejected that topic
// (SUBACK 0x80) or the subscribe failed.
//
// Returns:
//   - error: ErrNotConnected if there is no live connection
func (c *Client) ResubscribeExisting(done func(results map[string]*byte)) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		results := make(map[string]*byte, len(subs))
		for _, sub := range subs {
			granted, err := c.subscribeOnce(sub)
			if err != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Warn("MQTT resubscribe failed",
						"topic", sub.topic,
						"error", err,
					)
				}
				results[sub.topic] = nil
				continue
			}
			results[sub.topic] = &granted
		}

		if done != nil {
			done(results)
		}
	}()

	return nil
}
