package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/DhruvWebDev/Deploify/internal/binding"
	"github.com/DhruvWebDev/Deploify/internal/blob"
	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/staticsite"
)

func testHandler(t *testing.T) (*Handler, binding.Store, blob.Store) {
	t.Helper()
	bindings := binding.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(bindings, blobs, "deploify.test", 5*time.Second, logger), bindings, blobs
}

func doRequest(h http.Handler, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://placeholder"+path, nil)
	req.Host = host
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUnknownSubdomainIs404(t *testing.T) {
	h, _, _ := testHandler(t)

	rec := doRequest(h, "ghost-app.deploify.test", "/")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ghost-app") {
		t.Fatalf("body %q does not name the subdomain", rec.Body.String())
	}
}

func TestApexAndForeignHostsAreNotRouted(t *testing.T) {
	h, _, _ := testHandler(t)

	for _, host := range []string{"deploify.test", "deploify.test:8080", "example.com", "a.b.deploify.test"} {
		rec := doRequest(h, host, "/anything")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("host %s: status = %d, want 404", host, rec.Code)
		}
	}
}

func TestProxyForwardsToLiveProcess(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Deploify-Subdomain"); got != "brisk-otter-0001" {
			t.Errorf("X-Deploify-Subdomain = %q", got)
		}
		if got := r.Header.Get("X-Forwarded-Host"); !strings.HasPrefix(got, "brisk-otter-0001.deploify.test") {
			t.Errorf("X-Forwarded-Host = %q", got)
		}
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("path=" + r.URL.Path + " q=" + r.URL.RawQuery))
	}))
	defer backend.Close()
	endpoint := strings.TrimPrefix(backend.URL, "http://")

	h, bindings, _ := testHandler(t)
	if err := bindings.Put(context.Background(), domain.SubdomainBinding{
		Subdomain:    "brisk-otter-0001",
		BackingKind:  domain.BackingLiveProcess,
		Endpoint:     endpoint,
		ContainerRef: "c1",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := doRequest(h, "brisk-otter-0001.deploify.test", "/api/items?page=2")
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	if got := rec.Body.String(); got != "path=/api/items q=page=2" {
		t.Fatalf("proxied body = %q", got)
	}
}

func TestHealthzOnApexOnly(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("app health: " + r.URL.Path))
	}))
	defer backend.Close()

	h, bindings, _ := testHandler(t)
	if err := bindings.Put(context.Background(), domain.SubdomainBinding{
		Subdomain:    "brisk-otter-0001",
		BackingKind:  domain.BackingLiveProcess,
		Endpoint:     strings.TrimPrefix(backend.URL, "http://"),
		ContainerRef: "c1",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// The apex host answers with the router's own health payload.
	rec := doRequest(h, "deploify.test", "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("apex status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("apex body = %q", rec.Body.String())
	}

	// A bound subdomain's /healthz belongs to the deployment, not the router.
	rec = doRequest(h, "brisk-otter-0001.deploify.test", "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("subdomain status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "app health: /healthz" {
		t.Fatalf("subdomain body = %q, want the proxied payload", got)
	}
}

func TestProxyDeadBackendIs502(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(backend.URL)
	backend.Close()

	h, bindings, _ := testHandler(t)
	if err := bindings.Put(context.Background(), domain.SubdomainBinding{
		Subdomain:    "calm-heron-0002",
		BackingKind:  domain.BackingLiveProcess,
		Endpoint:     u.Host,
		ContainerRef: "c2",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := doRequest(h, "calm-heron-0002.deploify.test", "/")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func putStaticSite(t *testing.T, bindings binding.Store, blobs blob.Store, subdomain, prefix string) {
	t.Helper()
	files := map[string]string{
		"index.html":       "<h1>home</h1>",
		"about/index.html": "<h1>about</h1>",
		"assets/app.css":   "body{}",
	}
	keys := make([]string, 0, len(files))
	for rel, body := range files {
		if err := blobs.Put(context.Background(), prefix+"/"+rel, bytes.NewReader([]byte(body)), "text/plain"); err != nil {
			t.Fatalf("Put %s: %v", rel, err)
		}
		keys = append(keys, rel)
	}
	manifest, err := json.Marshal(staticsite.BuildManifest(keys))
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := blobs.Put(context.Background(), prefix+"/"+staticsite.ManifestKey, bytes.NewReader(manifest), "application/json"); err != nil {
		t.Fatalf("Put manifest: %v", err)
	}
	if err := bindings.Put(context.Background(), domain.SubdomainBinding{
		Subdomain:   subdomain,
		BackingKind: domain.BackingStaticArtifact,
		Endpoint:    prefix,
	}); err != nil {
		t.Fatalf("Put binding: %v", err)
	}
}

func TestStaticServingWithManifestRoutes(t *testing.T) {
	h, bindings, blobs := testHandler(t)
	putStaticSite(t, bindings, blobs, "vivid-crane-0003", "dep-123")

	cases := []struct {
		path     string
		wantBody string
		wantType string
	}{
		{"/", "<h1>home</h1>", "text/html"},
		{"/index.html", "<h1>home</h1>", "text/html"},
		{"/about", "<h1>about</h1>", "text/html"},
		{"/about/", "<h1>about</h1>", "text/html"},
		{"/assets/app.css", "body{}", "text/css"},
		// Deep link with no matching file falls back to the root document.
		{"/dashboard/settings", "<h1>home</h1>", "text/html"},
	}
	for _, tc := range cases {
		rec := doRequest(h, "vivid-crane-0003.deploify.test", tc.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", tc.path, rec.Code)
		}
		if rec.Body.String() != tc.wantBody {
			t.Fatalf("%s: body = %q, want %q", tc.path, rec.Body.String(), tc.wantBody)
		}
		if got := rec.Header().Get("Content-Type"); got != tc.wantType {
			t.Fatalf("%s: content type = %q, want %q", tc.path, got, tc.wantType)
		}
	}
}

func TestStaticMissingAssetIs404(t *testing.T) {
	h, bindings, blobs := testHandler(t)
	putStaticSite(t, bindings, blobs, "vivid-crane-0003", "dep-123")

	rec := doRequest(h, "vivid-crane-0003.deploify.test", "/assets/missing.png")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
