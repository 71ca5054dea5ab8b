package domain

import "time"

// Log levels inferred from raw build output.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
	LevelSuccess = "SUCCESS"
)

// LogEvent is one captured line of build or runtime output. Events are
// append-only; the log store may outlive the relational records, so
// DeploymentID is not a enforced foreign key.
type LogEvent struct {
	EventID      string
	DeploymentID string
	Level        string
	Message      string
	Timestamp    time.Time
}
