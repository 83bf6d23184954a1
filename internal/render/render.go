// Package render implements the page render entry points: forward the
// inbound request to the Next.js server, splice host-supplied fragments
// into the returned document and hand the composed stream to the client.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"nextjs-proxy-go/internal/client"
	"nextjs-proxy-go/internal/config"
	"nextjs-proxy-go/internal/injector"
	"nextjs-proxy-go/internal/metrics"
	"nextjs-proxy-go/internal/model"
)

// MidStreamError reports a failure after response headers (and possibly
// body bytes) were already sent. The response cannot be replaced at that
// point; the caller must abort the connection rather than let a truncated
// document look complete.
type MidStreamError struct {
	Err error
}

func (e *MidStreamError) Error() string { return fmt.Sprintf("mid-stream: %v", e.Err) }
func (e *MidStreamError) Unwrap() error { return e.Err }

// Page is a fully composed document, produced by the buffered entry point.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Missing lists markers absent from the upstream document.
	Missing []injector.Marker
}

// Renderer forwards page requests to the Next.js server and composes the
// outgoing document. One upstream request per call, no caching: the
// Next.js server owns data fetching, so every call renders fresh.
type Renderer struct {
	client         *client.NextJSClient
	resolver       TemplateResolver
	csrfCookieName string
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewRenderer creates a Renderer. The metrics parameter is optional; pass
// nil to disable marker metrics recording.
func NewRenderer(c *client.NextJSClient, resolver TemplateResolver, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Renderer {
	return &Renderer{
		client:         c,
		resolver:       resolver,
		csrfCookieName: cfg.Render.CSRFCookieName,
		logger:         logger.With("component", "renderer"),
		metrics:        m,
	}
}

// Render streams the composed page for req into w. The upstream status
// code is preserved, upstream headers are merged with whatever the host
// already queued on w (host cookies win, see MergeHeaders), and the body
// streams through the injector chunk by chunk.
//
// Errors before the first written byte (template resolution, upstream
// unreachable) are returned plainly; the caller still owns the response.
// Errors after headers were sent come back as *MidStreamError and the
// caller must abort the connection.
func (r *Renderer) Render(ctx context.Context, req *http.Request, w http.ResponseWriter, templateName string) error {
	frags, resp, generated, err := r.prepare(ctx, req, templateName)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	MergeHeaders(w.Header(), resp.Header)
	w.Header().Set("Content-Type", resp.ContentType())
	if generated != nil {
		http.SetCookie(w, generated)
	}
	w.WriteHeader(resp.StatusCode)

	res, err := injector.Inject(w, resp.Body, frags)
	if err != nil {
		return &MidStreamError{Err: err}
	}
	if hasDocumentBody(resp.StatusCode) {
		r.observeMissing(req, res.Missing)
	}
	return nil
}

// hasDocumentBody filters status codes whose responses legitimately carry
// no document, so absent markers there are not worth reporting.
func hasDocumentBody(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified
}

// RenderToString is the buffered entry point: it returns the whole
// composed document instead of streaming it, for host code that wants to
// post-process or embed the page. Header contains the merged upstream
// headers (plus a generated CSRF cookie when one was issued); the caller
// decides what to do with them.
func (r *Renderer) RenderToString(ctx context.Context, req *http.Request, templateName string) (*Page, error) {
	frags, resp, generated, err := r.prepare(ctx, req, templateName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	header := make(http.Header)
	if generated != nil {
		header.Add("Set-Cookie", generated.String())
	}
	MergeHeaders(header, resp.Header)
	header.Set("Content-Type", resp.ContentType())

	var buf bytes.Buffer
	res, err := injector.Inject(&buf, resp.Body, frags)
	if err != nil {
		return nil, fmt.Errorf("compose document: %w", err)
	}
	if hasDocumentBody(resp.StatusCode) {
		r.observeMissing(req, res.Missing)
	}

	return &Page{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       buf.Bytes(),
		Missing:    res.Missing,
	}, nil
}

// prepare resolves fragments, then issues the upstream request. Template
// resolution runs first so a bad template name fails before any upstream
// side effects.
func (r *Renderer) prepare(ctx context.Context, req *http.Request, templateName string) (injector.Fragments, *model.UpstreamResponse, *http.Cookie, error) {
	frags, err := r.resolver.Resolve(templateName)
	if err != nil {
		return injector.Fragments{}, nil, nil, err
	}

	header, generated := forwardedHeaders(req, r.csrfCookieName)
	resp, err := r.client.Fetch(ctx, http.MethodGet, req.URL.Path, req.URL.Query(), header, nil)
	if err != nil {
		return injector.Fragments{}, nil, nil, err
	}
	return frags, resp, generated, nil
}

func (r *Renderer) observeMissing(req *http.Request, missing []injector.Marker) {
	for _, m := range missing {
		r.logger.Warn("document marker missing, injection skipped",
			"marker", m.String(),
			"path", req.URL.Path,
		)
		if r.metrics != nil {
			r.metrics.MarkersMissing.WithLabelValues(m.String()).Inc()
		}
	}
}
