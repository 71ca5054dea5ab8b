package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository    = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.LogEventRepository   = (*Repository)(nil)
)

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, source_ref, subdomain, owner, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, project.ID, project.SourceRef, project.Subdomain, project.Owner, project.CreatedAt)
	return err
}

// GetProjectByID fetches a project by identifier.
func (r *Repository) GetProjectByID(ctx context.Context, projectID string) (*domain.Project, error) {
	const query = `SELECT id, source_ref, subdomain, owner, created_at FROM projects WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, projectID)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.SourceRef, &p.Subdomain, &p.Owner, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProjectBySubdomain fetches a project by its subdomain slug.
func (r *Repository) GetProjectBySubdomain(ctx context.Context, subdomain string) (*domain.Project, error) {
	const query = `SELECT id, source_ref, subdomain, owner, created_at FROM projects WHERE subdomain = $1`
	row := r.pool.QueryRow(ctx, query, subdomain)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.SourceRef, &p.Subdomain, &p.Owner, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateDeployment inserts a deployment record.
func (r *Repository) CreateDeployment(ctx context.Context, deployment *domain.Deployment) error {
	const query = `INSERT INTO deployments (id, project_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, deployment.ID, deployment.ProjectID, deployment.Status, deployment.CreatedAt, deployment.UpdatedAt)
	return err
}

// UpdateDeploymentStatus writes a new status for a deployment.
func (r *Repository) UpdateDeploymentStatus(ctx context.Context, deploymentID, status string) error {
	const query = `UPDATE deployments SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, deploymentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetDeploymentByID retrieves a deployment by identifier.
func (r *Repository) GetDeploymentByID(ctx context.Context, deploymentID string) (*domain.Deployment, error) {
	const query = `SELECT id, project_id, status, created_at, updated_at FROM deployments WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, deploymentID)
	var d domain.Deployment
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// InsertLogEvents appends a batch of log events. Re-delivered events with an
// already-seen event id are dropped, which keeps the at-least-once consumer
// safe to replay.
func (r *Repository) InsertLogEvents(ctx context.Context, events []domain.LogEvent) error {
	if len(events) == 0 {
		return nil
	}
	const query = `INSERT INTO log_events (event_id, deployment_id, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.EventID, e.DeploymentID, e.Level, e.Message, e.Timestamp)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListLogEventsByDeployment fetches log events ordered by timestamp ascending.
func (r *Repository) ListLogEventsByDeployment(ctx context.Context, deploymentID string) ([]domain.LogEvent, error) {
	const query = `SELECT event_id, deployment_id, level, message, created_at
		FROM log_events WHERE deployment_id = $1 ORDER BY created_at ASC, event_id ASC`
	rows, err := r.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.LogEvent, 0)
	for rows.Next() {
		var e domain.LogEvent
		if err := rows.Scan(&e.EventID, &e.DeploymentID, &e.Level, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
