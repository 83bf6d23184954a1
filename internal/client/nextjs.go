// Package client provides the upstream HTTP client for the Next.js server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"nextjs-proxy-go/internal/config"
	"nextjs-proxy-go/internal/metrics"
	"nextjs-proxy-go/internal/model"
)

// ErrUpstreamUnreachable is returned when the Next.js server cannot be
// reached: connection refused, reset, DNS failure, or timeout. It is never
// returned for a reachable server answering with an error status.
var ErrUpstreamUnreachable = errors.New("next.js server unreachable")

// NextJSClient sends requests to the upstream Next.js server.
type NextJSClient struct {
	httpClient *http.Client
	baseURL    *url.URL
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewNextJSClient creates a NextJSClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewNextJSClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*NextJSClient, error) {
	base, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// The injector scans the raw document, so the transport must not
		// transparently negotiate compression for render requests.
		DisableCompression: true,
	}

	return &NextJSClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		baseURL: base,
		logger:  logger.With("component", "nextjs_client"),
		metrics: m,
	}, nil
}

// BaseURL returns a copy of the configured upstream base URL.
func (c *NextJSClient) BaseURL() url.URL {
	return *c.baseURL
}

// Fetch forwards one request to the Next.js server and returns the streaming
// response. path must be rooted; query may be nil. Ownership of the response
// body transfers to the caller, which must close it. The provided context
// controls the lifetime of the upstream request: when it is canceled (e.g.
// the client disconnects), the upstream connection is torn down.
func (c *NextJSClient) Fetch(ctx context.Context, method, path string, query url.Values, header http.Header, body io.Reader) (*model.UpstreamResponse, error) {
	u := *c.baseURL
	u.Path = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	return c.do(req)
}

// do executes the request and maps transport-level failures to
// ErrUpstreamUnreachable. The caller owns the response body.
func (c *NextJSClient) do(req *http.Request) (*model.UpstreamResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, classifyTransportError(err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// classifyTransportError wraps connection-level failures in
// ErrUpstreamUnreachable while preserving the cause chain. Context
// cancellation from the inbound request is passed through untouched so
// callers can tell a dead upstream from a gone client.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("upstream request: %w", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnreachable, err)
	}

	return fmt.Errorf("upstream request: %w", err)
}
