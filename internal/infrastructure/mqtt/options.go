package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// alpnMQTT lets AWS IoT accept MQTT over mTLS on port 443.
	alpnMQTT = "x-amzn-mqtt-ca"
)

// optionsFunc produces paho options for a single connection attempt.
//
// It is called again for every reconnect so that short-lived material
// (presigned websocket URLs) is always fresh.
type optionsFunc func(ctx context.Context) (*pahomqtt.ClientOptions, error)

// newOptionsFunc selects the credential mode from config once.
//
// Returns:
//   - optionsFunc: Builder for per-attempt options
//   - error: If TLS material cannot be loaded or the mode is unknown
func newOptionsFunc(cfg config.MQTTConfig) (optionsFunc, error) {
	port := cfg.BrokerPort()

	switch cfg.Auth.Mode {
	case config.AuthModeMTLS:
		tlsConfig, err := newTLSConfig(cfg.Auth)
		if err != nil {
			return nil, err
		}
		if port == 443 {
			tlsConfig.NextProtos = []string{alpnMQTT}
		}
		broker := fmt.Sprintf("ssl://%s:%d", cfg.Endpoint, port)

		return func(context.Context) (*pahomqtt.ClientOptions, error) {
			opts := buildClientOptions(cfg)
			opts.AddBroker(broker)
			opts.SetTLSConfig(tlsConfig.Clone())
			return opts, nil
		}, nil

	case config.AuthModeWebSocket:
		rootCAs, err := loadRootCAs(cfg.Auth.RootCA)
		if err != nil {
			return nil, err
		}
		proxy, err := proxyFunc(cfg.WebSocket)
		if err != nil {
			return nil, err
		}
		signer := newPresigner(cfg.Endpoint, port, cfg.WebSocket.Region)

		return func(ctx context.Context) (*pahomqtt.ClientOptions, error) {
			broker, err := signer.presign(ctx)
			if err != nil {
				return nil, err
			}
			opts := buildClientOptions(cfg)
			opts.AddBroker(broker)
			opts.SetTLSConfig(&tls.Config{
				MinVersion: tlsMinVersion,
				RootCAs:    rootCAs,
			})
			if proxy != nil {
				opts.SetWebsocketOptions(&pahomqtt.WebsocketOptions{Proxy: proxy})
			}
			return opts, nil
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown auth mode %q", ErrCredentials, cfg.Auth.Mode)
	}
}

// buildClientOptions creates the paho options shared by every credential mode.
//
// This configures:
//   - Client ID for identification
//   - Persistent session (clean session off)
//   - Keep-alive from config
//   - Auto-reconnect off (Client owns reconnection to observe session-present)
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.SetClientID(cfg.ClientID)

	// Persistent session so the broker keeps subscriptions across drops
	opts.SetCleanSession(false)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(cfg.GetKeepAlive())

	// Handlers run in their own goroutines
	opts.SetOrderMatters(false)

	return opts
}

// newTLSConfig loads the client certificate and optional root CA for mTLS.
func newTLSConfig(auth config.MQTTAuthConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading client certificate: %w", ErrCredentials, err)
	}

	rootCAs, err := loadRootCAs(auth.RootCA)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:   tlsMinVersion,
		Certificates: []tls.Certificate{cert},
		RootCAs:      rootCAs,
	}, nil
}

// loadRootCAs reads a PEM bundle. An empty path keeps the system pool.
func loadRootCAs(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil //nolint:nilnil // nil pool means system roots
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading root CA: %w", ErrCredentials, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrCredentials, path)
	}
	return pool, nil
}

// proxyFunc returns an HTTP proxy selector for websocket connections, or nil.
func proxyFunc(ws config.MQTTWebSocketConfig) (pahomqtt.ProxyFunction, error) {
	if ws.ProxyHost == "" {
		return nil, nil //nolint:nilnil // no proxy configured
	}

	proxyURL, err := url.Parse("http://" + ws.ProxyHost + ":" + strconv.Itoa(ws.ProxyPort))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid proxy: %w", ErrConnectionFailed, err)
	}
	return http.ProxyURL(proxyURL), nil
}
