package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dixieflatline76/Placement/config"
	"github.com/dixieflatline76/Placement/util/log"
)

// MaxAssetBytes caps the size of a single downloaded asset.
const MaxAssetBytes = 256 << 20

// Remote serves assets over HTTP from a public bucket or CDN.
type Remote struct {
	baseURL string
	client  *http.Client
}

// RemoteOption configures a Remote.
type RemoteOption func(*remoteOptions)

type remoteOptions struct {
	client    *http.Client
	userAgent string
	rps       float64
	timeout   time.Duration
}

// WithHTTPClient replaces the HTTP client. Its transport is wrapped, not replaced.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(o *remoteOptions) { o.client = c }
}

// WithUserAgent sets the User-Agent sent with each request.
func WithUserAgent(ua string) RemoteOption {
	return func(o *remoteOptions) { o.userAgent = ua }
}

// WithRateLimit limits requests per second. Zero or less disables limiting.
func WithRateLimit(rps float64) RemoteOption {
	return func(o *remoteOptions) { o.rps = rps }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(o *remoteOptions) { o.timeout = d }
}

// S3BaseURL returns the virtual-hosted URL of a public S3 bucket.
func S3BaseURL(bucket, region string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
}

// NewRemote creates a Remote for baseURL.
func NewRemote(baseURL string, opts ...RemoteOption) (*Remote, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid assets base url %q", baseURL)
	}

	o := remoteOptions{
		userAgent: config.AppName + "/" + config.AppVersion,
		rps:       config.DefaultRemoteRPS,
		timeout:   config.DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := &http.Client{Timeout: o.timeout}
	var base http.RoundTripper
	if o.client != nil {
		client.Timeout = o.client.Timeout
		base = o.client.Transport
	}
	var rt http.RoundTripper = &UserAgentTransport{RoundTripper: base, UserAgent: o.userAgent}
	if o.rps > 0 {
		rt = &RateLimitedTransport{RoundTripper: rt, Limiter: rate.NewLimiter(rate.Limit(o.rps), max(1, int(o.rps)))}
	}
	client.Transport = rt

	return &Remote{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

// BaseURL returns the URL assets are fetched from.
func (r *Remote) BaseURL() string {
	return r.baseURL
}

// FetchAsset downloads key. 401, 403 and 404 responses mean the asset does not exist.
func (r *Remote) FetchAsset(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	assetURL := r.baseURL + "/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", key, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", assetURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, &AssetNotFoundError{Key: key, Source: r.baseURL}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("fetching %s: unexpected status %d: %s", assetURL, resp.StatusCode, msg)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", assetURL, err)
	}
	if len(data) > MaxAssetBytes {
		return nil, fmt.Errorf("asset %s exceeds %d bytes", key, MaxAssetBytes)
	}
	log.Debugf("storage: found %s remotely (%d bytes)", key, len(data))
	return data, nil
}

// FetchJSONMetadata downloads and decodes key.
func (r *Remote) FetchJSONMetadata(ctx context.Context, key string, v any) error {
	data, err := r.FetchAsset(ctx, key)
	if err != nil {
		return err
	}
	return decodeJSON(key, data, v)
}

// ListSceneIDs reads the catalog file. A missing catalog is an empty list.
func (r *Remote) ListSceneIDs(ctx context.Context) ([]SceneInfo, error) {
	var scenes []SceneInfo
	if err := r.FetchJSONMetadata(ctx, CatalogKey, &scenes); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return scenes, nil
}
