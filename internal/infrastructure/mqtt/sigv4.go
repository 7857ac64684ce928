package mqtt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const (
	// iotSigningService is the SigV4 service name for the IoT data plane.
	iotSigningService = "iotdevicegateway"

	// emptyPayloadHash is the hex SHA-256 of an empty body.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	securityTokenParam = "X-Amz-Security-Token"
)

// presigner builds SigV4 presigned wss:// URLs for the MQTT endpoint.
//
// Credentials come from the AWS default chain (environment, shared config,
// instance role) resolved on first use and cached by the SDK.
type presigner struct {
	endpoint string
	port     int
	region   string
	signer   *v4.Signer
	now      func() time.Time

	mu       sync.Mutex
	provider aws.CredentialsProvider
}

func newPresigner(endpoint string, port int, region string) *presigner {
	return &presigner{
		endpoint: endpoint,
		port:     port,
		region:   region,
		signer:   v4.NewSigner(),
		now:      time.Now,
	}
}

// credentials resolves the current credentials from the default chain.
func (p *presigner) credentials(ctx context.Context) (aws.Credentials, error) {
	p.mu.Lock()
	if p.provider == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
		if err != nil {
			p.mu.Unlock()
			return aws.Credentials{}, err
		}
		p.provider = awsCfg.Credentials
	}
	provider := p.provider
	p.mu.Unlock()

	if provider == nil {
		return aws.Credentials{}, fmt.Errorf("no credential provider for region %s", p.region)
	}
	return provider.Retrieve(ctx)
}

// presign returns a signed wss:// URL valid for the default presign window.
//
// The session token is appended after signing; the IoT gateway rejects
// URLs where it is part of the canonical query.
func (p *presigner) presign(ctx context.Context) (string, error) {
	creds, err := p.credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	return p.sign(ctx, creds)
}

func (p *presigner) sign(ctx context.Context, creds aws.Credentials) (string, error) {
	host := p.endpoint
	if p.port != 443 {
		host = p.endpoint + ":" + strconv.Itoa(p.port)
	}
	target := url.URL{Scheme: "wss", Host: host, Path: "/mqtt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: building signing request: %w", ErrConnectionFailed, err)
	}

	sessionToken := creds.SessionToken
	creds.SessionToken = ""

	signed, _, err := p.signer.PresignHTTP(ctx, creds, req, emptyPayloadHash, iotSigningService, p.region, p.now().UTC())
	if err != nil {
		return "", fmt.Errorf("%w: signing websocket URL: %w", ErrCredentials, err)
	}

	if sessionToken != "" {
		signed += "&" + securityTokenParam + "=" + url.QueryEscape(sessionToken)
	}
	return signed, nil
}
