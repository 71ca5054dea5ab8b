// Package router terminates wildcard-subdomain traffic and forwards each
// request to its deployment's backing: a live process (reverse proxy) or a
// static artifact tree (blob serving).
package router

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DhruvWebDev/Deploify/internal/binding"
	"github.com/DhruvWebDev/Deploify/internal/blob"
	"github.com/DhruvWebDev/Deploify/internal/contenttype"
	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/staticsite"
)

var forwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "deploify_router_requests_total",
	Help: "Requests handled by the traffic router, by backing kind and outcome.",
}, []string{"backing", "outcome"})

// Handler routes requests by the subdomain in the Host header.
type Handler struct {
	bindings       binding.Store
	blobs          blob.Store
	platformDomain string
	transport      http.RoundTripper
	logger         *slog.Logger
}

// New constructs the traffic router handler. proxyTimeout bounds how long an
// upstream may take to start responding; bodies stream without a deadline.
func New(bindings binding.Store, blobs blob.Store, platformDomain string, proxyTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		bindings:       bindings,
		blobs:          blobs,
		platformDomain: platformDomain,
		transport: &http.Transport{
			ResponseHeaderTimeout: proxyTimeout,
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subdomain, ok := h.subdomain(r.Host)
	if !ok {
		// Platform-owned paths exist only on the apex host; a bound
		// subdomain's paths belong entirely to the deployment behind it.
		if r.URL.Path == "/healthz" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		forwardedTotal.WithLabelValues("none", "no_subdomain").Inc()
		httpError(w, http.StatusNotFound, "no deployment subdomain in host")
		return
	}

	b, err := h.bindings.Get(r.Context(), subdomain)
	if err != nil {
		if errors.Is(err, binding.ErrNotFound) {
			forwardedTotal.WithLabelValues("none", "unbound").Inc()
			httpError(w, http.StatusNotFound, "no deployment bound to subdomain "+subdomain)
			return
		}
		h.logger.Error("binding lookup failed", "subdomain", subdomain, "error", err)
		forwardedTotal.WithLabelValues("none", "error").Inc()
		httpError(w, http.StatusBadGateway, "routing table unavailable")
		return
	}

	switch b.BackingKind {
	case domain.BackingLiveProcess:
		h.proxy(w, r, subdomain, b.Endpoint)
	case domain.BackingStaticArtifact:
		h.serveStatic(w, r, subdomain, b.Endpoint)
	default:
		h.logger.Error("unknown backing kind", "subdomain", subdomain, "kind", b.BackingKind)
		forwardedTotal.WithLabelValues(b.BackingKind, "error").Inc()
		httpError(w, http.StatusBadGateway, "unroutable deployment")
	}
}

// subdomain extracts the deployment subdomain from the request host. Requests
// to the apex domain or to hosts outside the platform domain carry none.
func (h *Handler) subdomain(host string) (string, bool) {
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		host = hostname
	}
	host = strings.ToLower(host)
	suffix := "." + h.platformDomain
	if host == h.platformDomain || !strings.HasSuffix(host, suffix) {
		return "", false
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	return sub, true
}

// proxy forwards the request to the deployment's live endpoint, preserving
// path, query, body and streaming semantics.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, subdomain, endpoint string) {
	target := &url.URL{Scheme: "http", Host: endpoint}
	rp := &httputil.ReverseProxy{
		Transport: h.transport,
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Header.Set("X-Forwarded-Host", r.Host)
			req.Header.Set("X-Deploify-Subdomain", subdomain)
		},
		ErrorHandler: func(w http.ResponseWriter, _ *http.Request, err error) {
			h.logger.Warn("upstream unreachable", "subdomain", subdomain, "endpoint", endpoint, "error", err)
			forwardedTotal.WithLabelValues("LIVE_PROCESS", "upstream_error").Inc()
			httpError(w, http.StatusBadGateway, "deployment is not responding")
		},
	}
	forwardedTotal.WithLabelValues("LIVE_PROCESS", "forwarded").Inc()
	rp.ServeHTTP(w, r)
}

// serveStatic resolves the request path through the deployment's route
// manifest and streams the matching artifact from blob storage.
func (h *Handler) serveStatic(w http.ResponseWriter, r *http.Request, subdomain, storagePrefix string) {
	manifest, err := h.loadManifest(r, storagePrefix)
	if err != nil {
		h.logger.Error("manifest load failed", "subdomain", subdomain, "error", err)
		forwardedTotal.WithLabelValues("STATIC_ARTIFACT", "error").Inc()
		httpError(w, http.StatusBadGateway, "deployment artifacts unavailable")
		return
	}

	fileKey, ok := resolveRoute(manifest, r.URL.Path)
	if !ok {
		forwardedTotal.WithLabelValues("STATIC_ARTIFACT", "not_found").Inc()
		httpError(w, http.StatusNotFound, "not found")
		return
	}

	body, err := h.blobs.Get(r.Context(), storagePrefix+"/"+fileKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			forwardedTotal.WithLabelValues("STATIC_ARTIFACT", "not_found").Inc()
			httpError(w, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("artifact fetch failed", "subdomain", subdomain, "key", fileKey, "error", err)
		forwardedTotal.WithLabelValues("STATIC_ARTIFACT", "error").Inc()
		httpError(w, http.StatusBadGateway, "deployment artifacts unavailable")
		return
	}

	forwardedTotal.WithLabelValues("STATIC_ARTIFACT", "served").Inc()
	w.Header().Set("Content-Type", contenttype.FromPath(fileKey))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) loadManifest(r *http.Request, storagePrefix string) (map[string]string, error) {
	raw, err := h.blobs.Get(r.Context(), storagePrefix+"/"+staticsite.ManifestKey)
	if err != nil {
		return nil, err
	}
	var manifest map[string]string
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// resolveRoute maps a request path to an artifact key: exact match first,
// then the path without its trailing slash, then the root entry for
// extensionless paths so client-side routers keep working on deep links.
func resolveRoute(manifest map[string]string, reqPath string) (string, bool) {
	reqPath = path.Clean("/" + reqPath)
	if key, ok := manifest[reqPath]; ok {
		return key, true
	}
	if trimmed := strings.TrimSuffix(reqPath, "/"); trimmed != reqPath && trimmed != "" {
		if key, ok := manifest[trimmed]; ok {
			return key, true
		}
	}
	if path.Ext(reqPath) == "" {
		if key, ok := manifest["/"]; ok {
			return key, true
		}
	}
	return "", false
}

func httpError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
