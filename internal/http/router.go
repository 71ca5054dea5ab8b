// Package httpx exposes the deployment platform's HTTP and websocket API.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DhruvWebDev/Deploify/internal/coordinator"
	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/ws"
)

const healthCheckTimeout = 2 * time.Second

// DeploymentService is the coordinator surface the API depends on.
type DeploymentService interface {
	Submit(ctx context.Context, in coordinator.SubmitInput) (coordinator.SubmitResult, error)
	GetStatus(ctx context.Context, deployID string) (string, error)
	GetLogs(ctx context.Context, deployID string) ([]domain.LogEvent, error)
}

// Router wires HTTP endpoints to the coordinator.
type Router struct {
	mux              *http.ServeMux
	logger           *slog.Logger
	deployments      DeploymentService
	hub              *ws.Hub
	upgrader         websocket.Upgrader
	defaultBranchRef string
	dbHealth         func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, deployments DeploymentService, hub *ws.Hub, defaultBranchRef string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		deployments: deployments,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		defaultBranchRef: defaultBranchRef,
		dbHealth:         dbHealth,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.HandleFunc("/deployments", r.audit(r.handleCreateDeployment))
	r.mux.HandleFunc("/deployments/", r.audit(r.handleDeploymentSubroutes))
	r.mux.HandleFunc("/webhook", r.audit(r.handleWebhook))
	r.mux.HandleFunc("/ws", r.handleWS)
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
}

// submitPayload is the deployment request body. EnvVars stays a pointer so an
// omitted field is distinguishable from an empty map.
type submitPayload struct {
	SourceReference string             `json:"sourceReference"`
	EnvVars         *map[string]string `json:"envVars"`
	Framework       string             `json:"framework"`
	Owner           string             `json:"owner"`
}

func (p submitPayload) input() coordinator.SubmitInput {
	in := coordinator.SubmitInput{
		SourceRef: p.SourceReference,
		Framework: p.Framework,
		Owner:     p.Owner,
	}
	if p.EnvVars != nil {
		in.EnvVars = *p.EnvVars
		if in.EnvVars == nil {
			in.EnvVars = map[string]string{}
		}
	}
	return in
}

func (r *Router) handleCreateDeployment(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload submitPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := r.deployments.Submit(req.Context(), payload.input())
	if err != nil {
		if errorStatus(err) == http.StatusInternalServerError {
			r.logger.Error("submit failed", "error", err)
		}
		writeDomainError(w, err, "could not create deployment")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"deployId":  result.DeployID,
		"subdomain": result.Subdomain,
	})
}

func (r *Router) handleDeploymentSubroutes(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/deployments/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		r.notFound(w)
		return
	}
	deployID := parts[0]
	switch parts[1] {
	case "status":
		status, err := r.deployments.GetStatus(req.Context(), deployID)
		if err != nil {
			if errorStatus(err) == http.StatusInternalServerError {
				r.logger.Error("status lookup failed", "deployment_id", deployID, "error", err)
			}
			writeDomainError(w, err, "could not read status")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	case "logs":
		events, err := r.deployments.GetLogs(req.Context(), deployID)
		if err != nil {
			r.logger.Error("log query failed", "deployment_id", deployID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not read logs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logEventsJSON(events)})
	default:
		r.notFound(w)
	}
}

// webhookPayload covers the push-event fields the platform reacts to.
type webhookPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		CloneURL string `json:"clone_url"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// handleWebhook accepts push events and triggers a deployment only for the
// default branch. Other refs are acknowledged and ignored so the sender does
// not retry.
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload webhookPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Ref != r.defaultBranchRef {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "not the default branch"})
		return
	}
	if payload.Repository.CloneURL == "" {
		writeError(w, http.StatusBadRequest, "repository.clone_url missing")
		return
	}
	result, err := r.deployments.Submit(req.Context(), coordinator.SubmitInput{
		SourceRef: payload.Repository.CloneURL,
		EnvVars:   map[string]string{},
		Framework: "node",
		Owner:     payload.Repository.Owner.Login,
	})
	if err != nil {
		r.logger.Error("webhook submit failed", "clone_url", payload.Repository.CloneURL, "error", err)
		writeError(w, http.StatusInternalServerError, "could not create deployment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "accepted",
		"deployId":  result.DeployID,
		"subdomain": result.Subdomain,
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		route := routeLabel(req.URL.Path)
		r.recordRequestMetrics(req.Method, route, status, duration)
		r.logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds())
	}
}

// routeLabel collapses per-deployment paths so metric cardinality stays flat.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/deployments/") {
		switch {
		case strings.HasSuffix(path, "/status"):
			return "/deployments/{id}/status"
		case strings.HasSuffix(path, "/logs"):
			return "/deployments/{id}/logs"
		}
		return "/deployments/{id}"
	}
	return path
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

type logEventJSON struct {
	EventID   string `json:"eventId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func logEventsJSON(events []domain.LogEvent) []logEventJSON {
	out := make([]logEventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, logEventJSON{
			EventID:   e.EventID,
			Level:     e.Level,
			Message:   e.Message,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}
