// Package client provides the outbound HTTP client for the relay's upstream.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"signin-relay/internal/config"
	"signin-relay/internal/metrics"
	"signin-relay/internal/model"
)

var (
	// ErrOffHostRedirect is returned when the upstream redirects to another host.
	ErrOffHostRedirect = errors.New("redirect to a different host refused")
	// ErrResponseTooLarge is returned when the upstream body exceeds
	// upstream.max_response_bytes. The body is never passed on truncated.
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// maxRedirects matches net/http's default redirect limit.
const maxRedirects = 10

// UpstreamClient sends single, non-retried requests to the upstream host.
type UpstreamClient struct {
	httpClient       *http.Client
	logger           *slog.Logger
	metrics          *metrics.Metrics
	maxResponseBytes int64
}

// NewUpstreamClient creates an UpstreamClient with pooling and the configured timeout.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport:     transport,
			Timeout:       time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: sameHostRedirect,
		},
		logger:           logger.With("component", "upstream_client"),
		metrics:          m,
		maxResponseBytes: cfg.Upstream.MaxResponseBytes,
	}
}

// sameHostRedirect follows redirects only while they stay on the host of the
// original request.
func sameHostRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Hostname() != via[0].URL.Hostname() {
		return fmt.Errorf("%w: %s", ErrOffHostRedirect, req.URL.Hostname())
	}
	return nil
}

// Do executes a request and reads the whole response body, whatever the
// status code. A returned error means no response was obtained.
func (c *UpstreamClient) Do(ctx context.Context, method, url string, header http.Header, body io.Reader) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	method = metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, "", time.Since(start))
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var r io.Reader = resp.Body
	if c.maxResponseBytes > 0 {
		r = io.LimitReader(resp.Body, c.maxResponseBytes+1)
	}
	data, err := io.ReadAll(r)
	c.observe(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if c.maxResponseBytes > 0 && int64(len(data)) > c.maxResponseBytes {
		c.logger.Warn("upstream response over limit",
			"status", resp.StatusCode,
			"limit", c.maxResponseBytes,
		)
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxResponseBytes)
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) observe(method, status string, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(d.Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}
}
