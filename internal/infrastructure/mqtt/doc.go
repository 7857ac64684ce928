// Package mqtt provides the MQTT transport for envsensor.
//
// This package manages:
//   - Connection to an AWS IoT Core style endpoint with a persistent session
//   - Credential modes: mutual TLS or SigV4-presigned websockets (optional proxy)
//   - Reconnection with exponential backoff (github.com/cenkalti/backoff/v4)
//   - Publishing with QoS acknowledgment
//   - Subscription tracking and resubscription after a non-persistent resume
//
// # Reconnection
//
// Paho's own auto-reconnect is disabled. The client reconnects itself so the
// CONNACK of each resume (return code, session present) reaches the Listener:
//
//	connection lost -> Listener.OnInterrupted(err)
//	backoff retries -> Listener.OnResumed(rc, sessionPresent)
//
// When sessionPresent is false the broker has forgotten the subscriptions and
// the caller is expected to call ResubscribeExisting.
//
// # Security Considerations
//
//   - TLS 1.2 is the minimum for both credential modes
//   - Websocket mode resolves AWS credentials from the default chain on
//     every connection attempt; the signed URL is never logged
//
// # Usage
//
//	client, err := mqtt.NewClient(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetListener(manager)
//	if _, err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	err = client.Publish(ctx, cfg.MQTT.Topic, payload, 1, false)
package mqtt
