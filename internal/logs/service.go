// Package logs implements the capture -> durable transport -> batch persist ->
// query pipeline for deployment output.
package logs

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/repository"
	"github.com/DhruvWebDev/Deploify/internal/stream"
)

// Broadcaster pushes live log payloads to streaming subscribers.
type Broadcaster interface {
	Broadcast(key string, payload []byte)
}

// Classify infers a log level from raw output by case-insensitive substring
// match. Errors win over success and warnings.
func Classify(raw string) string {
	lowered := strings.ToLower(raw)
	switch {
	case strings.Contains(lowered, "error"):
		return domain.LevelError
	case strings.Contains(lowered, "success"):
		return domain.LevelSuccess
	case strings.Contains(lowered, "warning"), strings.Contains(lowered, "warn"):
		return domain.LevelWarning
	default:
		return domain.LevelInfo
	}
}

// envelope is the wire form of a captured chunk on the transport.
type envelope struct {
	DeploymentID string    `json:"deploy_id"`
	Level        string    `json:"level"`
	Message      string    `json:"log"`
	Timestamp    time.Time `json:"timestamp"`
}

// Service is the publish/query surface of the log pipeline.
type Service struct {
	publisher stream.Publisher
	store     repository.LogEventRepository
	hub       Broadcaster
	logger    *slog.Logger
}

// New constructs a log pipeline service. hub may be nil when no live
// streaming surface is attached.
func New(publisher stream.Publisher, store repository.LogEventRepository, hub Broadcaster, logger *slog.Logger) Service {
	return Service{publisher: publisher, store: store, hub: hub, logger: logger}
}

// Publish wraps the raw chunk with a classification and timestamp and appends
// it to the transport. Transport failures are logged and swallowed so a
// transient outage never fails a deployment.
func (s Service) Publish(ctx context.Context, deploymentID, rawChunk string) {
	now := time.Now().UTC()
	env := envelope{
		DeploymentID: deploymentID,
		Level:        Classify(rawChunk),
		Message:      rawChunk,
		Timestamp:    now,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("failed to encode log chunk", "deployment_id", deploymentID, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.logger.Warn("log publish failed", "deployment_id", deploymentID, "error", err)
	}
	s.broadcast(deploymentID, env)
}

func (s Service) broadcast(deploymentID string, env envelope) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":          "log",
		"deployment_id": deploymentID,
		"level":         env.Level,
		"message":       env.Message,
		"timestamp":     env.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	s.hub.Broadcast(deploymentID, payload)
}

// Query returns all persisted log events for a deployment ordered by
// timestamp ascending. An unknown deployment yields an empty slice.
func (s Service) Query(ctx context.Context, deploymentID string) ([]domain.LogEvent, error) {
	events, err := s.store.ListLogEventsByDeployment(ctx, deploymentID)
	if err != nil {
		return nil, err
	}
	// Events can arrive at the store out of capture order across publisher
	// instances; order by timestamp, not arrival.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// decodeEvent converts one transport message into a log event with a freshly
// generated event id.
func decodeEvent(msg stream.Message) (domain.LogEvent, error) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return domain.LogEvent{}, err
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return domain.LogEvent{
		EventID:      uuid.NewString(),
		DeploymentID: env.DeploymentID,
		Level:        env.Level,
		Message:      env.Message,
		Timestamp:    env.Timestamp,
	}, nil
}
