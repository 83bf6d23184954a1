package render

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// forwardableRequestHeaders are the inbound headers copied onto the
// upstream page request. Cookies and the CSRF token are handled separately.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"User-Agent",
	"If-None-Match",
	"If-Modified-Since",
	"Cache-Control",
}

// strippedResponseHeaders are upstream headers never forwarded to the
// client: hop-by-hop headers plus framing headers that no longer hold after
// injection changes the body length.
var strippedResponseHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Content-Encoding":    true,
}

// forwardedHeaders builds the header set for one upstream page request:
// the allowlisted inbound headers, the client's real IP, the full cookie
// line (with a CSRF token guaranteed present) and an identity
// Accept-Encoding so the injector scans plain HTML.
//
// When the inbound request carried no CSRF cookie, a fresh token is
// generated and returned so the caller can queue it on the outbound
// response; otherwise the second return is nil.
func forwardedHeaders(req *http.Request, csrfCookieName string) (http.Header, *http.Cookie) {
	h := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := req.Header.Values(key); len(vals) > 0 {
			h[http.CanonicalHeaderKey(key)] = vals
		}
	}

	h.Set("X-Real-Ip", realIP(req))
	h.Set("Accept-Encoding", "identity")

	cookieLine, generated := cookieLineWithCSRF(req, csrfCookieName)
	if cookieLine != "" {
		h.Set("Cookie", cookieLine)
	}

	return h, generated
}

// realIP prefers an upstream-set X-Real-Ip, falling back to the immediate
// peer address.
func realIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	return req.RemoteAddr
}

// cookieLineWithCSRF rebuilds the inbound cookie line, appending a freshly
// generated CSRF token when none is present. Next.js data fetching POSTs
// against the host need a token on the very first request of a session.
func cookieLineWithCSRF(req *http.Request, csrfCookieName string) (string, *http.Cookie) {
	cookies := req.Cookies()

	var b strings.Builder
	hasCSRF := false
	for _, c := range cookies {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
		if c.Name == csrfCookieName {
			hasCSRF = true
		}
	}

	if hasCSRF || csrfCookieName == "" {
		return b.String(), nil
	}

	token := newCSRFToken()
	if b.Len() > 0 {
		b.WriteString("; ")
	}
	b.WriteString(csrfCookieName)
	b.WriteByte('=')
	b.WriteString(token)

	generated := &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	return b.String(), generated
}

func newCSRFToken() string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	return hex.EncodeToString(raw[:])
}

// MergeHeaders copies the forwardable upstream response headers into dst
// without disturbing values the host queued beforehand. Host-set cookies
// take precedence for identity: an upstream Set-Cookie whose name collides
// with a host-set one is dropped. Upstream wins for content framing.
func MergeHeaders(dst http.Header, upstream http.Header) {
	hostCookies := map[string]bool{}
	for _, sc := range dst.Values("Set-Cookie") {
		hostCookies[setCookieName(sc)] = true
	}

	for key, vals := range upstream {
		canon := http.CanonicalHeaderKey(key)
		if strippedResponseHeaders[canon] {
			continue
		}
		if canon == "Set-Cookie" {
			for _, sc := range vals {
				if !hostCookies[setCookieName(sc)] {
					dst.Add("Set-Cookie", sc)
				}
			}
			continue
		}
		dst[canon] = vals
	}
}

// setCookieName extracts the cookie name from a Set-Cookie header value.
func setCookieName(v string) string {
	if i := strings.IndexByte(v, '='); i >= 0 {
		return strings.TrimSpace(v[:i])
	}
	return strings.TrimSpace(v)
}
