// Package model defines shared types for the render proxy.
package model

import (
	"io"
	"net/http"
)

// UpstreamResponse is the Next.js server's response to one forwarded request.
// The Body is a single-pass stream; whoever receives an UpstreamResponse owns
// the Body and must close it to release the underlying connection.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// ContentType returns the upstream Content-Type, falling back to a safe
// default for HTML documents.
func (r *UpstreamResponse) ContentType() string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "text/html; charset=utf-8"
}
