package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DhruvWebDev/Deploify/internal/ws"
)

// wsFrame is the envelope for client-to-server websocket messages.
type wsFrame struct {
	Type            string             `json:"type"`
	DeployID        string             `json:"deployId"`
	SourceReference string             `json:"sourceReference"`
	EnvVars         *map[string]string `json:"envVars"`
	Framework       string             `json:"framework"`
}

// handleWS runs the interactive deployment protocol: build-project starts a
// deployment and subscribes the connection to its event stream, fetch-logs
// returns the persisted history. Server pushes arrive as log,
// deployment-success and deployment-error frames.
func (r *Router) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	var subscribed []string
	defer func() {
		for _, id := range subscribed {
			r.hub.Unregister(id, client)
		}
		client.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			r.sendWSError(client, "invalid JSON frame")
			continue
		}
		switch frame.Type {
		case "build-project":
			in := submitPayload{
				SourceReference: frame.SourceReference,
				EnvVars:         frame.EnvVars,
				Framework:       frame.Framework,
			}.input()
			// The hook fires before provisioning starts, so no broadcast
			// can slip past the subscription.
			in.OnAccepted = func(deployID, _ string) {
				r.hub.Register(deployID, client)
				subscribed = append(subscribed, deployID)
			}
			result, err := r.deployments.Submit(req.Context(), in)
			if err != nil {
				r.sendWSError(client, err.Error())
				continue
			}
			r.sendWS(client, map[string]any{
				"type":          "log",
				"deployment_id": result.DeployID,
				"subdomain":     result.Subdomain,
				"level":         "INFO",
				"log":           "deployment queued",
				"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
			})
		case "fetch-logs":
			if frame.DeployID == "" {
				r.sendWSError(client, "deployId required")
				continue
			}
			events, err := r.deployments.GetLogs(req.Context(), frame.DeployID)
			if err != nil {
				r.sendWSError(client, "could not read logs")
				continue
			}
			r.sendWS(client, map[string]any{
				"type":          "logs",
				"deployment_id": frame.DeployID,
				"logs":          logEventsJSON(events),
			})
		default:
			r.sendWSError(client, "unknown frame type")
		}
	}
}

func (r *Router) sendWS(client *ws.Client, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = client.Send(raw)
}

func (r *Router) sendWSError(client *ws.Client, message string) {
	r.sendWS(client, map[string]any{"type": "error", "message": message})
}
