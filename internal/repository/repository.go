package repository

import (
	"context"

	"github.com/DhruvWebDev/Deploify/internal/domain"
)

// ProjectRepository persists project records.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error)
	GetProjectBySubdomain(ctx context.Context, subdomain string) (*domain.Project, error)
}

// DeploymentRepository stores deployment lifecycle records.
type DeploymentRepository interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	UpdateDeploymentStatus(ctx context.Context, deploymentID, status string) error
	GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error)
}

// LogEventRepository is the analytical log store: idempotent appends keyed by
// event id, filtered reads ordered by timestamp.
type LogEventRepository interface {
	InsertLogEvents(ctx context.Context, events []domain.LogEvent) error
	ListLogEventsByDeployment(ctx context.Context, deploymentID string) ([]domain.LogEvent, error)
}
