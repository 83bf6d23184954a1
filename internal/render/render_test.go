package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nextjs-proxy-go/internal/client"
	"nextjs-proxy-go/internal/config"
	"nextjs-proxy-go/internal/injector"
)

const upstreamDoc = `<html><head><title>t</title></head>` +
	`<body id="__django_nextjs_body">` +
	`<div id="__django_nextjs_body_begin"/>CONTENT<div id="__django_nextjs_body_end"/>` +
	`</body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRenderer(t *testing.T, baseURL string, resolver TemplateResolver) *Renderer {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:         baseURL,
			TimeoutSeconds:  5,
			IdleConnections: 10,
		},
		Render: config.RenderConfig{CSRFCookieName: "csrftoken"},
	}
	c, err := client.NewNextJSClient(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewNextJSClient: %v", err)
	}
	if resolver == nil {
		resolver = StaticResolver{}
	}
	return NewRenderer(c, resolver, cfg, testLogger(), nil)
}

func TestRender_Scenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	resolver := StaticResolver{
		"base.html": injector.Fragments{
			HeadPrefix: "<meta a>",
			BodyPrefix: "<header>H</header>",
			BodySuffix: "<footer>F</footer>",
		},
	}
	r := testRenderer(t, srv.URL, resolver)

	req := httptest.NewRequest(http.MethodGet, "/page?x=1", http.NoBody)
	rec := httptest.NewRecorder()

	if err := r.Render(context.Background(), req, rec, "base.html"); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<meta a></head>",
		`<div id="__django_nextjs_body_begin"/><header>H</header>CONTENT`,
		`<footer>F</footer><div id="__django_nextjs_body_end"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want upstream's", ct)
	}
}

func TestRender_EmptyTemplateIsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	r := testRenderer(t, srv.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()

	if err := r.Render(context.Background(), req, rec, ""); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if rec.Body.String() != upstreamDoc {
		t.Errorf("body differs from upstream document:\ngot  %q\nwant %q", rec.Body.String(), upstreamDoc)
	}
}

func TestRender_UpstreamStatusPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	resolver := StaticResolver{"base.html": injector.Fragments{HeadPrefix: "<meta n>"}}
	r := testRenderer(t, srv.URL, resolver)
	req := httptest.NewRequest(http.MethodGet, "/missing", http.NoBody)
	rec := httptest.NewRecorder()

	if err := r.Render(context.Background(), req, rec, "base.html"); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 passthrough", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<meta n></head>") {
		t.Errorf("injection must still apply on non-200: %q", rec.Body.String())
	}
}

func TestRender_UpstreamUnreachable_NoBytesWritten(t *testing.T) {
	r := testRenderer(t, "http://127.0.0.1:1", nil)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()

	err := r.Render(context.Background(), req, rec, "")
	if err == nil {
		t.Fatal("Render() expected error, got nil")
	}
	if !errors.Is(err, client.ErrUpstreamUnreachable) {
		t.Errorf("error = %v, want ErrUpstreamUnreachable", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("wrote %d body bytes on failed render, want 0", rec.Body.Len())
	}
}

func TestRender_TemplateNotFound_NoUpstreamCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := testRenderer(t, srv.URL, StaticResolver{})
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()

	err := r.Render(context.Background(), req, rec, "nope.html")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("error = %v, want ErrTemplateNotFound", err)
	}
	if called {
		t.Error("upstream was called despite template resolution failure")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("wrote %d body bytes, want 0", rec.Body.Len())
	}
}

func TestRender_ForwardsCookiesAndRealIP(t *testing.T) {
	var gotCookie, gotRealIP, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotRealIP = r.Header.Get("X-Real-Ip")
		gotEncoding = r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	r := testRenderer(t, srv.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "9.8.7.6:1234"
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "abc"})
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: "tok"})
	rec := httptest.NewRecorder()

	if err := r.Render(context.Background(), req, rec, ""); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !strings.Contains(gotCookie, "sessionid=abc") || !strings.Contains(gotCookie, "csrftoken=tok") {
		t.Errorf("upstream Cookie = %q, want session and csrf cookies", gotCookie)
	}
	if gotRealIP != "9.8.7.6" {
		t.Errorf("X-Real-Ip = %q, want %q", gotRealIP, "9.8.7.6")
	}
	if gotEncoding != "identity" {
		t.Errorf("Accept-Encoding = %q, want identity", gotEncoding)
	}
	// An existing token means no generated Set-Cookie on the response.
	if sc := rec.Header().Get("Set-Cookie"); strings.Contains(sc, "csrftoken") {
		t.Errorf("unexpected generated CSRF cookie: %q", sc)
	}
}

func TestRender_GeneratesCSRFCookie(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	r := testRenderer(t, srv.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()

	if err := r.Render(context.Background(), req, rec, ""); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !strings.Contains(gotCookie, "csrftoken=") {
		t.Errorf("upstream Cookie = %q, want a generated csrftoken", gotCookie)
	}
	if sc := rec.Header().Get("Set-Cookie"); !strings.Contains(sc, "csrftoken=") {
		t.Errorf("Set-Cookie = %q, want generated csrftoken queued for the client", sc)
	}
}

func TestRender_HostCookiesWinOverUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "sessionid=upstream; Path=/")
		w.Header().Add("Set-Cookie", "theme=dark; Path=/")
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	r := testRenderer(t, srv.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: "tok"})
	rec := httptest.NewRecorder()

	// The host queued its own session cookie before rendering.
	rec.Header().Add("Set-Cookie", "sessionid=host; Path=/; HttpOnly")

	if err := r.Render(context.Background(), req, rec, ""); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	cookies := rec.Header().Values("Set-Cookie")
	joined := strings.Join(cookies, "\n")
	if !strings.Contains(joined, "sessionid=host") {
		t.Errorf("host session cookie lost: %q", joined)
	}
	if strings.Contains(joined, "sessionid=upstream") {
		t.Errorf("upstream session cookie must yield to host's: %q", joined)
	}
	if !strings.Contains(joined, "theme=dark") {
		t.Errorf("non-conflicting upstream cookie dropped: %q", joined)
	}
}

func TestRenderToString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(upstreamDoc))
	}))
	defer srv.Close()

	resolver := StaticResolver{"base.html": injector.Fragments{BodyPrefix: "<p>hi</p>"}}
	r := testRenderer(t, srv.URL, resolver)
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)

	page, err := r.RenderToString(context.Background(), req, "base.html")
	if err != nil {
		t.Fatalf("RenderToString() error = %v", err)
	}

	if page.StatusCode != http.StatusTeapot {
		t.Errorf("StatusCode = %d, want %d", page.StatusCode, http.StatusTeapot)
	}
	if !strings.Contains(string(page.Body), `begin"/><p>hi</p>CONTENT`) {
		t.Errorf("body injection missing: %q", page.Body)
	}
	if len(page.Missing) != 0 {
		t.Errorf("Missing = %v, want none", page.Missing)
	}
	if ct := page.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want upstream's", ct)
	}
}

func TestRenderToString_MissingMarkersReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><p>no markers</p></html>"))
	}))
	defer srv.Close()

	r := testRenderer(t, srv.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	page, err := r.RenderToString(context.Background(), req, "")
	if err != nil {
		t.Fatalf("RenderToString() error = %v", err)
	}
	if len(page.Missing) != 4 {
		t.Errorf("Missing = %v, want all four markers", page.Missing)
	}
	if string(page.Body) != "<html><p>no markers</p></html>" {
		t.Errorf("document modified despite no markers: %q", page.Body)
	}
}
