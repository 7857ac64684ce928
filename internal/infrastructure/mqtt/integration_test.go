//go:build integration

package mqtt

import (
	"context"
	"net"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
)

// Integration tests against a real Mosquitto broker started with testcontainers.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

// startMosquitto starts an anonymous Mosquitto 2 broker and returns host:port.
func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "1883/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return net.JoinHostPort(host, port.Port())
}

// plainClient returns a Client using plain TCP to addr.
func plainClient(addr, clientID string) *Client {
	cfg := config.MQTTConfig{
		ClientID:  clientID,
		KeepAlive: 6,
		Reconnect: config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 2},
	}
	return newClient(cfg, func(context.Context) (*pahomqtt.ClientOptions, error) {
		opts := buildClientOptions(cfg)
		opts.AddBroker("tcp://" + addr)
		return opts, nil
	}, pahomqtt.NewClient)
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	addr := startMosquitto(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := plainClient(addr, "envsensor-int-roundtrip")
	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	granted, err := client.Subscribe("envsensor/int/telemetry", 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if granted != 1 {
		t.Errorf("granted QoS = %d, want 1", granted)
	}

	if err := client.Publish(ctx, "envsensor/int/telemetry", []byte(`{"ok":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"ok":true}` {
			t.Errorf("payload = %s", payload)
		}
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}

func TestIntegration_PersistentSessionPresent(t *testing.T) {
	addr := startMosquitto(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	first := plainClient(addr, "envsensor-int-session")
	res, err := first.Connect(ctx)
	if err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	if res.SessionPresent {
		t.Error("first connect reported a session, want none")
	}
	if _, err := first.Subscribe("envsensor/int/session", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	_ = first.Close()

	second := plainClient(addr, "envsensor-int-session")
	res, err = second.Connect(ctx)
	if err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	defer second.Close()

	if !res.SessionPresent {
		t.Error("second connect SessionPresent = false, want true for clean_session=false")
	}
}

func TestIntegration_ResubscribeExisting(t *testing.T) {
	addr := startMosquitto(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := plainClient(addr, "envsensor-int-resub")
	if _, err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{"envsensor/int/a", "envsensor/int/b"}
	for _, topic := range topics {
		if _, err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	done := make(chan map[string]*byte, 1)
	if err := client.ResubscribeExisting(func(results map[string]*byte) { done <- results }); err != nil {
		t.Fatalf("ResubscribeExisting() error = %v", err)
	}

	select {
	case results := <-done:
		for _, topic := range topics {
			if q := results[topic]; q == nil || *q != 1 {
				t.Errorf("results[%s] = %v, want QoS 1", topic, q)
			}
		}
	case <-ctx.Done():
		t.Fatal("resubscribe callback not invoked")
	}
}
