package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/nerrad567/envsensor/internal/infrastructure/config"
)

// writeTestCert writes a self-signed certificate and key, returning their paths.
func writeTestCert(t *testing.T) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "envsensor-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "device.pem.crt")
	keyPath = filepath.Join(dir, "private.pem.key")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func TestNewOptionsFunc_MTLS(t *testing.T) {
	certPath, keyPath := writeTestCert(t)
	cfg := testMQTTConfig()
	cfg.Auth = config.MQTTAuthConfig{
		Mode:     config.AuthModeMTLS,
		CertFile: certPath,
		KeyFile:  keyPath,
		RootCA:   certPath,
	}

	build, err := newOptionsFunc(cfg)
	if err != nil {
		t.Fatalf("newOptionsFunc() error = %v", err)
	}
	opts, err := build(context.Background())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.test:8883" {
		t.Errorf("Servers = %v, want ssl://broker.test:8883", opts.Servers)
	}
	if opts.ClientID != "envsensor-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.CleanSession {
		t.Error("CleanSession = true, want false")
	}
	if opts.TLSConfig == nil || len(opts.TLSConfig.Certificates) != 1 {
		t.Fatal("TLSConfig missing client certificate")
	}
	if opts.TLSConfig.RootCAs == nil {
		t.Error("RootCAs = nil, want configured pool")
	}
	if len(opts.TLSConfig.NextProtos) != 0 {
		t.Errorf("NextProtos = %v, want none on 8883", opts.TLSConfig.NextProtos)
	}
}

func TestNewOptionsFunc_MTLSPort443UsesALPN(t *testing.T) {
	certPath, keyPath := writeTestCert(t)
	cfg := testMQTTConfig()
	cfg.Port = 443
	cfg.Auth = config.MQTTAuthConfig{Mode: config.AuthModeMTLS, CertFile: certPath, KeyFile: keyPath}

	build, err := newOptionsFunc(cfg)
	if err != nil {
		t.Fatalf("newOptionsFunc() error = %v", err)
	}
	opts, err := build(context.Background())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}

	if got := opts.TLSConfig.NextProtos; len(got) != 1 || got[0] != alpnMQTT {
		t.Errorf("NextProtos = %v, want [%s]", got, alpnMQTT)
	}
}

func TestNewOptionsFunc_Errors(t *testing.T) {
	certPath, keyPath := writeTestCert(t)
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	tests := []struct {
		name string
		auth config.MQTTAuthConfig
	}{
		{name: "missing cert", auth: config.MQTTAuthConfig{Mode: config.AuthModeMTLS, CertFile: "/nonexistent.crt", KeyFile: keyPath}},
		{name: "bad root CA", auth: config.MQTTAuthConfig{Mode: config.AuthModeMTLS, CertFile: certPath, KeyFile: keyPath, RootCA: garbage}},
		{name: "websocket bad root CA", auth: config.MQTTAuthConfig{Mode: config.AuthModeWebSocket, RootCA: garbage}},
		{name: "unknown mode", auth: config.MQTTAuthConfig{Mode: "password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testMQTTConfig()
			cfg.Auth = tt.auth
			if _, err := newOptionsFunc(cfg); !errors.Is(err, ErrCredentials) {
				t.Errorf("newOptionsFunc() error = %v, want ErrCredentials", err)
			}
		})
	}
}

func TestProxyFunc(t *testing.T) {
	none, err := proxyFunc(config.MQTTWebSocketConfig{})
	if err != nil || none != nil {
		t.Fatalf("proxyFunc(empty) = %v, %v; want nil, nil", none, err)
	}

	proxy, err := proxyFunc(config.MQTTWebSocketConfig{ProxyHost: "proxy.local", ProxyPort: 3128})
	if err != nil {
		t.Fatalf("proxyFunc() error = %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "https://broker.test/mqtt", nil)
	got, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy() error = %v", err)
	}
	if got.String() != "http://proxy.local:3128" {
		t.Errorf("proxy URL = %s, want http://proxy.local:3128", got)
	}
}

func TestPresigner_Sign(t *testing.T) {
	p := newPresigner("abc-ats.iot.eu-west-1.amazonaws.com", 443, "eu-west-1")
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	signed, err := p.sign(context.Background(), aws.Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "token/with+chars",
	})
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("signed URL does not parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "abc-ats.iot.eu-west-1.amazonaws.com" || u.Path != "/mqtt" {
		t.Errorf("signed URL = %s, want wss://<endpoint>/mqtt", signed)
	}

	q := u.Query()
	if q.Get("X-Amz-Algorithm") != "AWS4-HMAC-SHA256" {
		t.Errorf("X-Amz-Algorithm = %q", q.Get("X-Amz-Algorithm"))
	}
	wantCred := "AKIDEXAMPLE/20240301/eu-west-1/iotdevicegateway/aws4_request"
	if q.Get("X-Amz-Credential") != wantCred {
		t.Errorf("X-Amz-Credential = %q, want %q", q.Get("X-Amz-Credential"), wantCred)
	}
	if q.Get("X-Amz-Signature") == "" {
		t.Error("X-Amz-Signature missing")
	}
	if q.Get(securityTokenParam) != "token/with+chars" {
		t.Errorf("%s = %q, want session token", securityTokenParam, q.Get(securityTokenParam))
	}
	if !strings.HasSuffix(signed, "&"+securityTokenParam+"="+url.QueryEscape("token/with+chars")) {
		t.Error("session token should be appended after the signature")
	}
}

func TestPresigner_SignNonDefaultPort(t *testing.T) {
	p := newPresigner("broker.test", 8443, "us-east-1")

	signed, err := p.sign(context.Background(), aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}
	if !strings.HasPrefix(signed, "wss://broker.test:8443/mqtt?") {
		t.Errorf("signed URL = %s, want port in host", signed)
	}
	if strings.Contains(signed, securityTokenParam) {
		t.Error("security token present without a session token")
	}
}

func TestValidateTopics(t *testing.T) {
	tests := []struct {
		topic     string
		publishOK bool
		filterOK  bool
	}{
		{topic: "envsensor/telemetry", publishOK: true, filterOK: true},
		{topic: "envsensor/+/state", publishOK: false, filterOK: true},
		{topic: "envsensor/#", publishOK: false, filterOK: true},
		{topic: "#", publishOK: false, filterOK: true},
		{topic: "envsensor/a+", publishOK: false, filterOK: false},
		{topic: "envsensor/#/x", publishOK: false, filterOK: false},
		{topic: "", publishOK: false, filterOK: false},
		{topic: "bad\x00topic", publishOK: false, filterOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if err := ValidatePublishTopic(tt.topic); (err == nil) != tt.publishOK {
				t.Errorf("ValidatePublishTopic(%q) error = %v, want ok=%v", tt.topic, err, tt.publishOK)
			}
			if err := ValidateTopicFilter(tt.topic); (err == nil) != tt.filterOK {
				t.Errorf("ValidateTopicFilter(%q) error = %v, want ok=%v", tt.topic, err, tt.filterOK)
			}
		})
	}
}
