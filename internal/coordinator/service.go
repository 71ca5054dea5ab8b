// Package coordinator drives a deployment through its lifecycle:
// record creation, environment provisioning, log-pipeline activation, and
// status finalization.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/provision"
	"github.com/DhruvWebDev/Deploify/internal/repository"
)

// ValidationError reports missing or malformed submit fields.
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return e.Reason
}

// EnvironmentProvisioner stands up and tears down live-process environments.
type EnvironmentProvisioner interface {
	Provision(ctx context.Context, req provision.Request) (provision.Result, error)
	Teardown(ctx context.Context, containerRef, subdomain string) error
}

// StaticDeployer builds and publishes static-framework deployments.
type StaticDeployer interface {
	Deploy(ctx context.Context, req provision.Request) error
}

// LogPipeline is the coordinator's view of the log pipeline.
type LogPipeline interface {
	Publish(ctx context.Context, deploymentID, rawChunk string)
	Query(ctx context.Context, deploymentID string) ([]domain.LogEvent, error)
}

// Broadcaster pushes completion frames to streaming subscribers. May be nil.
type Broadcaster interface {
	Broadcast(key string, payload []byte)
}

// SlugSource produces unique subdomain slugs.
type SlugSource interface {
	Next() string
}

// SubmitInput is one deployment request. OnAccepted, when set, runs after the
// records are persisted and before any provisioning output can flow, so
// callers can subscribe to the deployment's event stream without losing the
// first broadcasts.
type SubmitInput struct {
	SourceRef  string
	EnvVars    map[string]string
	Framework  string
	Owner      string
	OnAccepted func(deployID, subdomain string)
}

// SubmitResult is returned immediately while provisioning continues in the
// background.
type SubmitResult struct {
	DeployID  string
	Subdomain string
}

// Service orchestrates deployments.
type Service struct {
	projects          repository.ProjectRepository
	deployments       repository.DeploymentRepository
	provisioner       EnvironmentProvisioner
	static            StaticDeployer
	logs              LogPipeline
	slugs             SlugSource
	hub               Broadcaster
	logger            *slog.Logger
	teardownOnFailure bool
	provisionTimeout  time.Duration
}

// New constructs a coordinator service. provisionTimeout bounds one
// provisioning attempt end to end; zero means no limit.
func New(projects repository.ProjectRepository, deployments repository.DeploymentRepository, provisioner EnvironmentProvisioner, static StaticDeployer, logPipeline LogPipeline, slugs SlugSource, hub Broadcaster, logger *slog.Logger, teardownOnFailure bool, provisionTimeout time.Duration) *Service {
	return &Service{
		projects:          projects,
		deployments:       deployments,
		provisioner:       provisioner,
		static:            static,
		logs:              logPipeline,
		slugs:             slugs,
		hub:               hub,
		logger:            logger,
		teardownOnFailure: teardownOnFailure,
		provisionTimeout:  provisionTimeout,
	}
}

// Submit validates the request, persists the Project and Deployment records,
// kicks off provisioning in the background, and returns immediately so
// callers can poll or subscribe for completion. Build latency is highly
// variable and must never block the request path.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	var missing []string
	if strings.TrimSpace(in.SourceRef) == "" {
		missing = append(missing, "sourceReference")
	}
	if in.EnvVars == nil {
		missing = append(missing, "envVars")
	}
	if strings.TrimSpace(in.Framework) == "" {
		missing = append(missing, "framework")
	}
	if len(missing) > 0 {
		return SubmitResult{}, &ValidationError{Missing: missing}
	}
	fw, ok := provision.LookupFramework(in.Framework)
	if !ok {
		return SubmitResult{}, &ValidationError{
			Reason: fmt.Sprintf("unsupported framework %q (supported: %s)", in.Framework, strings.Join(provision.SupportedFrameworks(), ", ")),
		}
	}

	now := time.Now().UTC()
	project := &domain.Project{
		ID:        uuid.NewString(),
		SourceRef: in.SourceRef,
		Subdomain: s.slugs.Next(),
		Owner:     in.Owner,
		CreatedAt: now,
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return SubmitResult{}, fmt.Errorf("create project: %w", err)
	}

	deployment := &domain.Deployment{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Status:    domain.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deployments.CreateDeployment(ctx, deployment); err != nil {
		return SubmitResult{}, fmt.Errorf("create deployment: %w", err)
	}

	req := provision.Request{
		DeploymentID: deployment.ID,
		Subdomain:    project.Subdomain,
		SourceRef:    in.SourceRef,
		EnvVars:      in.EnvVars,
		Framework:    fw,
	}

	if in.OnAccepted != nil {
		in.OnAccepted(deployment.ID, project.Subdomain)
	}

	outcomes := make(chan outcome, 1)
	go s.execute(req, outcomes)
	go s.finalize(req, outcomes)

	s.logger.Info("deployment accepted",
		"deployment_id", deployment.ID,
		"subdomain", project.Subdomain,
		"framework", fw.Name)
	return SubmitResult{DeployID: deployment.ID, Subdomain: project.Subdomain}, nil
}

// outcome travels from the provisioning task to the status-update path.
type outcome struct {
	containerRef string
	err          error
}

func (s *Service) execute(req provision.Request, outcomes chan<- outcome) {
	// Provisioning outlives the originating request.
	ctx := context.Background()
	if s.provisionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.provisionTimeout)
		defer cancel()
	}
	s.logs.Publish(ctx, req.DeploymentID, "starting deployment process")

	if req.Framework.Static {
		outcomes <- outcome{err: s.static.Deploy(ctx, req)}
		return
	}
	result, err := s.provisioner.Provision(ctx, req)
	outcomes <- outcome{containerRef: result.ContainerRef, err: err}
}

func (s *Service) finalize(req provision.Request, outcomes <-chan outcome) {
	ctx := context.Background()
	out := <-outcomes

	if out.err != nil {
		// Failures during async provisioning are only observable through
		// status and logs; record the reason before flipping the status.
		s.logs.Publish(ctx, req.DeploymentID, "error: deployment failed: "+out.err.Error())
		if s.teardownOnFailure && out.containerRef != "" {
			if err := s.provisioner.Teardown(ctx, out.containerRef, req.Subdomain); err != nil {
				s.logger.Warn("teardown after failure", "deployment_id", req.DeploymentID, "error", err)
			}
		}
		if err := s.deployments.UpdateDeploymentStatus(ctx, req.DeploymentID, domain.StatusFailed); err != nil {
			s.logger.Error("status write failed", "deployment_id", req.DeploymentID, "status", domain.StatusFailed, "error", err)
		}
		s.notify(req, "deployment-error", "Deployment failed: "+out.err.Error())
		s.logger.Warn("deployment failed", "deployment_id", req.DeploymentID, "error", out.err)
		return
	}

	s.logs.Publish(ctx, req.DeploymentID, "deployment completed successfully")
	if err := s.deployments.UpdateDeploymentStatus(ctx, req.DeploymentID, domain.StatusReady); err != nil {
		s.logger.Error("status write failed", "deployment_id", req.DeploymentID, "status", domain.StatusReady, "error", err)
		return
	}
	s.notify(req, "deployment-success", "Deployment completed successfully!")
	s.logger.Info("deployment ready", "deployment_id", req.DeploymentID, "subdomain", req.Subdomain)
}

func (s *Service) notify(req provision.Request, frameType, message string) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":          frameType,
		"deployment_id": req.DeploymentID,
		"subdomain":     req.Subdomain,
		"message":       message,
	})
	if err != nil {
		return
	}
	s.hub.Broadcast(req.DeploymentID, payload)
}

// GetStatus returns the deployment's current lifecycle status.
func (s *Service) GetStatus(ctx context.Context, deployID string) (string, error) {
	deployment, err := s.deployments.GetDeploymentByID(ctx, deployID)
	if err != nil {
		return "", err
	}
	return deployment.Status, nil
}

// GetLogs returns the deployment's log events in ascending timestamp order.
// No logs yet is an empty sequence, not an error.
func (s *Service) GetLogs(ctx context.Context, deployID string) ([]domain.LogEvent, error) {
	return s.logs.Query(ctx, deployID)
}
