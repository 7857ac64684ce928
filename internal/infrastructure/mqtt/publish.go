package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (128KB, the AWS IoT Core limit).
const maxPayloadSize = 128 << 10

// Publish sends a message to the specified MQTT topic and waits for the
// broker acknowledgment (QoS 1/2) or for the write to complete (QoS 0).
//
// Parameters:
//   - ctx: Cancels the wait for acknowledgment
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload (typically JSON, max 128KB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
//
// Example:
//
//	err := client.Publish(ctx, "envsensor/telemetry", payload, 1, false)
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.current().Publish(topic, qos, retained, payload)
	if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
