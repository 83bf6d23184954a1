// Package tunnel relays development-mode traffic to the Next.js server
// unmodified: asset and internal-protocol requests over plain HTTP, and
// the hot-reload channel over WebSocket. The injector is never involved,
// and none of these routes may be mounted in a production deployment;
// a front reverse proxy owns the asset prefixes there.
package tunnel

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"nextjs-proxy-go/internal/client"
	"nextjs-proxy-go/internal/config"
	"nextjs-proxy-go/internal/metrics"
)

// hopByHopHeaders are stripped in both directions; everything else passes
// through verbatim.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Relay is the development tunnel: one pass-through for HTTP and one for
// the hot-reload WebSocket, both stateless per connection.
type Relay struct {
	client  *client.NextJSClient
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelay creates a Relay. The metrics parameter is optional; pass nil to
// disable tunnel metrics recording.
func NewRelay(c *client.NextJSClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "dev_tunnel"),
		metrics: m,
	}
}

// HTTP forwards one request verbatim and streams the upstream response
// back verbatim. Cancellation of the inbound request context tears down
// the upstream connection rather than draining it.
func (t *Relay) HTTP(c echo.Context) error {
	req := c.Request()
	t.session("http")
	if t.metrics != nil {
		t.metrics.TunnelSessionsActive.WithLabelValues("http").Inc()
		defer t.metrics.TunnelSessionsActive.WithLabelValues("http").Dec()
	}

	header := req.Header.Clone()
	for _, h := range hopByHopHeaders {
		header.Del(h)
	}

	resp, err := t.client.Fetch(req.Context(), req.Method, req.URL.Path, req.URL.Query(), header, req.Body)
	if err != nil {
		if errors.Is(err, client.ErrUpstreamUnreachable) {
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "next.js server unreachable",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "tunnel request failed",
		})
	}
	defer func() { _ = resp.Body.Close() }()

	out := c.Response().Header()
	for key, vals := range resp.Header {
		if isHopByHop(key) {
			continue
		}
		for _, v := range vals {
			out.Add(key, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)

	// A failed copy after the status line is a broken pipe on one side or
	// the other; the deferred close tears down the peer and we only log.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		t.logger.Debug("tunnel stream interrupted",
			"err", err,
			"path", req.URL.Path,
		)
	}
	return nil
}

func isHopByHop(key string) bool {
	canon := http.CanonicalHeaderKey(key)
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(h) == canon {
			return true
		}
	}
	return false
}

// session records one tunnel session of the given kind.
func (t *Relay) session(kind string) {
	if t.metrics == nil {
		return
	}
	t.metrics.TunnelSessionsTotal.WithLabelValues(kind).Inc()
}
