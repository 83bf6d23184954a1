package tunnel

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket relays the hot-reload channel: it accepts the client upgrade,
// dials the same path on the Next.js server, then forwards frames in both
// directions in order until either side closes or errors. The surviving
// side is closed with the peer's close code.
func (t *Relay) WebSocket(c echo.Context) error {
	req := c.Request()
	t.session("websocket")

	clientConn, err := websocket.Accept(c.Response(), req, &websocket.AcceptOptions{
		// Dev-only endpoint; the browser connects from the Next.js dev
		// origin as well as the host's own.
		InsecureSkipVerify: true,
	})
	if err != nil {
		t.logger.Debug("hot-reload accept failed", "err", err)
		return nil // Accept already wrote the HTTP error
	}
	// HMR sync messages and error overlays can exceed the library's 32 KiB
	// default read limit. The relay forwards whatever the peers exchange.
	clientConn.SetReadLimit(-1)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	upstreamConn, _, err := websocket.Dial(ctx, t.upstreamWSURL(req), &websocket.DialOptions{
		HTTPHeader: upgradeHeaders(req),
	})
	if err != nil {
		t.logger.Warn("hot-reload upstream dial failed", "err", err)
		_ = clientConn.Close(websocket.StatusBadGateway, "next.js server unreachable")
		return nil
	}
	upstreamConn.SetReadLimit(-1)

	if t.metrics != nil {
		t.metrics.TunnelSessionsActive.WithLabelValues("websocket").Inc()
		defer t.metrics.TunnelSessionsActive.WithLabelValues("websocket").Dec()
	}

	// Two pumps, one per direction. The first to fail cancels the shared
	// context, which unblocks the other's pending Read.
	errc := make(chan error, 2)
	go func() { errc <- pump(ctx, upstreamConn, clientConn) }()
	go func() { errc <- pump(ctx, clientConn, upstreamConn) }()

	first := <-errc
	cancel()
	<-errc

	status := websocket.CloseStatus(first)
	if status == -1 {
		status = websocket.StatusNormalClosure
	}
	_ = clientConn.Close(status, "")
	_ = upstreamConn.Close(status, "")

	t.logger.Debug("hot-reload session closed", "status", int(status))
	return nil
}

// pump copies frames from src to dst until read or write fails.
func pump(ctx context.Context, dst, src *websocket.Conn) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			return err
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			return err
		}
	}
}

// upstreamWSURL swaps the configured base URL's scheme for its WebSocket
// counterpart, keeping the inbound path and query.
func (t *Relay) upstreamWSURL(req *http.Request) string {
	u := t.client.BaseURL()
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = req.URL.Path
	u.RawQuery = req.URL.RawQuery
	return u.String()
}

// upgradeHeaders forwards identity headers on the upstream dial; the
// WebSocket handshake headers themselves are owned by the dialer.
func upgradeHeaders(req *http.Request) http.Header {
	h := make(http.Header)
	if cookie := req.Header.Get("Cookie"); cookie != "" {
		h.Set("Cookie", cookie)
	}
	if ua := req.Header.Get("User-Agent"); ua != "" {
		h.Set("User-Agent", ua)
	}
	return h
}
