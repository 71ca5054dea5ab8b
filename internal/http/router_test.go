package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/DhruvWebDev/Deploify/internal/coordinator"
	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/repository"
	"github.com/DhruvWebDev/Deploify/internal/ws"
)

type fakeDeploymentService struct {
	submitted []coordinator.SubmitInput
	submitErr error
	statuses  map[string]string
	logs      map[string][]domain.LogEvent
}

func newFakeDeploymentService() *fakeDeploymentService {
	return &fakeDeploymentService{
		statuses: make(map[string]string),
		logs:     make(map[string][]domain.LogEvent),
	}
}

func (f *fakeDeploymentService) Submit(_ context.Context, in coordinator.SubmitInput) (coordinator.SubmitResult, error) {
	if f.submitErr != nil {
		return coordinator.SubmitResult{}, f.submitErr
	}
	f.submitted = append(f.submitted, in)
	return coordinator.SubmitResult{DeployID: "dep-1", Subdomain: "brisk-otter-0001"}, nil
}

func (f *fakeDeploymentService) GetStatus(_ context.Context, deployID string) (string, error) {
	status, ok := f.statuses[deployID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return status, nil
}

func (f *fakeDeploymentService) GetLogs(_ context.Context, deployID string) ([]domain.LogEvent, error) {
	return f.logs[deployID], nil
}

func newTestRouter(svc DeploymentService) *Router {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewRouter(logger, svc, ws.NewHub(), "refs/heads/main", nil)
}

func postJSON(t *testing.T, h http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateDeploymentAccepted(t *testing.T) {
	svc := newFakeDeploymentService()
	router := newTestRouter(svc)

	rec := postJSON(t, router, "/deployments", map[string]any{
		"sourceReference": "https://github.com/acme/app",
		"envVars":         map[string]string{"API_KEY": "k"},
		"framework":       "node",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["deployId"] != "dep-1" || resp["subdomain"] != "brisk-otter-0001" {
		t.Fatalf("response = %v", resp)
	}
	if len(svc.submitted) != 1 || svc.submitted[0].EnvVars == nil {
		t.Fatalf("submitted = %+v", svc.submitted)
	}
}

func TestCreateDeploymentMissingEnvVarsIs400(t *testing.T) {
	svc := newFakeDeploymentService()
	svc.submitErr = &coordinator.ValidationError{Missing: []string{"envVars"}}
	router := newTestRouter(svc)

	rec := postJSON(t, router, "/deployments", map[string]any{
		"sourceReference": "https://github.com/acme/app",
		"framework":       "node",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "envVars") {
		t.Fatalf("body %q does not name envVars", rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc := newFakeDeploymentService()
	svc.statuses["dep-1"] = domain.StatusInProgress
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deployments/dep-1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), domain.StatusInProgress) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deployments/ghost/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown deployment status = %d, want 404", rec.Code)
	}
}

func TestLogsEndpointReturnsEvents(t *testing.T) {
	svc := newFakeDeploymentService()
	svc.logs["dep-1"] = []domain.LogEvent{
		{EventID: "e1", DeploymentID: "dep-1", Level: domain.LevelInfo, Message: "cloning", Timestamp: time.Now().UTC()},
		{EventID: "e2", DeploymentID: "dep-1", Level: domain.LevelError, Message: "npm exploded", Timestamp: time.Now().UTC()},
	}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deployments/dep-1/logs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Logs []logEventJSON `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Logs) != 2 || resp.Logs[1].Level != domain.LevelError {
		t.Fatalf("logs = %+v", resp.Logs)
	}
}

func TestLogsEndpointEmptyIs200(t *testing.T) {
	router := newTestRouter(newFakeDeploymentService())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deployments/quiet/logs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"logs":[]`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestWebhookTriggersOnlyDefaultBranch(t *testing.T) {
	svc := newFakeDeploymentService()
	router := newTestRouter(svc)

	push := func(ref string) *httptest.ResponseRecorder {
		return postJSON(t, router, "/webhook", map[string]any{
			"ref": ref,
			"repository": map[string]any{
				"clone_url": "https://github.com/acme/app.git",
				"owner":     map[string]any{"login": "acme"},
			},
		})
	}

	rec := push("refs/heads/feature/shiny")
	if rec.Code != http.StatusOK {
		t.Fatalf("non-default branch status = %d, want 200", rec.Code)
	}
	if len(svc.submitted) != 0 {
		t.Fatal("non-default branch push triggered a deployment")
	}

	rec = push("refs/heads/main")
	if rec.Code != http.StatusOK {
		t.Fatalf("default branch status = %d, want 200", rec.Code)
	}
	if len(svc.submitted) != 1 {
		t.Fatalf("default branch push submitted %d deployments, want 1", len(svc.submitted))
	}
	if svc.submitted[0].Owner != "acme" {
		t.Fatalf("owner = %q, want acme", svc.submitted[0].Owner)
	}
}

func TestWebsocketBuildAndFetchLogs(t *testing.T) {
	svc := newFakeDeploymentService()
	svc.logs["dep-1"] = []domain.LogEvent{
		{EventID: "e1", DeploymentID: "dep-1", Level: domain.LevelInfo, Message: "hello", Timestamp: time.Now().UTC()},
	}
	router := newTestRouter(svc)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(frame map[string]any) {
		t.Helper()
		if err := conn.WriteJSON(frame); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	read := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		return frame
	}

	send(map[string]any{
		"type":            "build-project",
		"sourceReference": "https://github.com/acme/app",
		"envVars":         map[string]string{},
		"framework":       "node",
	})
	ack := read()
	if ack["type"] != "log" || ack["deployment_id"] != "dep-1" {
		t.Fatalf("ack frame = %v", ack)
	}

	send(map[string]any{"type": "fetch-logs", "deployId": "dep-1"})
	logsFrame := read()
	if logsFrame["type"] != "logs" {
		t.Fatalf("logs frame = %v", logsFrame)
	}

	send(map[string]any{"type": "self-destruct"})
	errFrame := read()
	if errFrame["type"] != "error" {
		t.Fatalf("error frame = %v", errFrame)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&coordinator.ValidationError{Missing: []string{"framework"}}, http.StatusBadRequest},
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("query deployment: %w", repository.ErrNotFound), http.StatusNotFound},
		{errors.New("pool exhausted"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	healthy := NewRouter(logger, newFakeDeploymentService(), ws.NewHub(), "refs/heads/main", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
