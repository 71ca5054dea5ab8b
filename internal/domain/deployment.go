package domain

import "time"

// Deployment statuses. A deployment only ever moves forward:
// PENDING -> IN_PROGRESS -> READY | FAILED.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusReady      = "READY"
	StatusFailed     = "FAILED"
)

// Deployment captures a single build-and-run attempt for a project.
type Deployment struct {
	ID        string
	ProjectID string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TerminalStatus reports whether status is a final deployment state.
func TerminalStatus(status string) bool {
	return status == StatusReady || status == StatusFailed
}
