// Package provision creates and destroys the isolated execution environment
// backing a live-process deployment.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"log/slog"

	"github.com/DhruvWebDev/Deploify/internal/binding"
	"github.com/DhruvWebDev/Deploify/internal/domain"
)

// ErrProvision marks image pull, environment creation/start, or port-binding
// failures. Provisioning failures are terminal for the deployment.
var ErrProvision = errors.New("provision failed")

// BuildFailure reports an execution environment that exited with a nonzero
// status before reporting readiness.
type BuildFailure struct {
	ExitCode int64
}

func (e *BuildFailure) Error() string {
	return fmt.Sprintf("build process exited with status %d", e.ExitCode)
}

// LogSink receives captured output chunks tagged with a deployment id.
type LogSink interface {
	Publish(ctx context.Context, deploymentID, rawChunk string)
}

// Request carries everything needed to stand up one execution environment.
type Request struct {
	DeploymentID string
	Subdomain    string
	SourceRef    string
	EnvVars      map[string]string
	Framework    Framework
}

// Result describes a successfully provisioned environment.
type Result struct {
	ContainerRef string
	Endpoint     string
}

// Provisioner runs one ephemeral container per deployment and owns the
// LIVE_PROCESS side of the subdomain binding table.
type Provisioner struct {
	docker          *DockerClient
	bindings        binding.Store
	sink            LogSink
	logger          *slog.Logger
	image           string
	appPort         int
	readinessWindow time.Duration
}

// New constructs a Provisioner.
func New(docker *DockerClient, bindings binding.Store, sink LogSink, logger *slog.Logger, image string, appPort int) *Provisioner {
	return &Provisioner{
		docker:          docker,
		bindings:        bindings,
		sink:            sink,
		logger:          logger,
		image:           image,
		appPort:         appPort,
		readinessWindow: 3 * time.Second,
	}
}

// Provision stands up the execution environment for a deployment: ensures the
// runtime image, synthesizes the build/run script, starts the container with
// the app port mapped to an ephemeral host port, registers the subdomain
// binding, and wires output streaming into the log pipeline. An early nonzero
// exit within the readiness window fails the call with BuildFailure.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Result, error) {
	if err := p.docker.EnsureImage(ctx, p.image, func(line string) {
		p.sink.Publish(ctx, req.DeploymentID, line)
	}); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProvision, err)
	}

	script := RenderScript(PlanSteps(req.SourceRef, req.EnvVars, req.Framework, p.appPort))
	name := "deploify-" + req.Subdomain
	containerID, err := p.docker.StartScript(ctx, name, p.image, script, p.appPort)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProvision, err)
	}

	// The container is running from here on; the watcher owns binding removal
	// once the process exits.
	streamCtx, stopStream := context.WithCancel(context.Background())
	go p.stream(streamCtx, req.DeploymentID, containerID)

	exited := make(chan int64, 1)
	go p.watch(req, containerID, stopStream, exited)

	hostPort, err := p.docker.HostPort(ctx, containerID, p.appPort)
	if err != nil {
		_ = p.docker.StopAndRemove(context.Background(), containerID)
		return Result{}, fmt.Errorf("%w: %v", ErrProvision, err)
	}
	endpoint := net.JoinHostPort("127.0.0.1", hostPort)

	b := domain.SubdomainBinding{
		Subdomain:    req.Subdomain,
		BackingKind:  domain.BackingLiveProcess,
		Endpoint:     endpoint,
		ContainerRef: containerID,
	}
	if err := p.bindings.Put(ctx, b); err != nil {
		_ = p.docker.StopAndRemove(context.Background(), containerID)
		return Result{}, fmt.Errorf("%w: register binding: %v", ErrProvision, err)
	}

	// A script that fails during clone or install exits almost immediately;
	// surface that as a build failure instead of reporting readiness.
	select {
	case code := <-exited:
		if code != 0 {
			return Result{}, &BuildFailure{ExitCode: code}
		}
	case <-time.After(p.readinessWindow):
	case <-ctx.Done():
		_ = p.Teardown(context.Background(), containerID, req.Subdomain)
		return Result{}, fmt.Errorf("%w: %v", ErrProvision, ctx.Err())
	}

	p.logger.Info("environment provisioned",
		"deployment_id", req.DeploymentID,
		"container_id", containerID,
		"endpoint", endpoint)
	return Result{ContainerRef: containerID, Endpoint: endpoint}, nil
}

func (p *Provisioner) stream(ctx context.Context, deploymentID, containerID string) {
	err := p.docker.StreamOutput(ctx, containerID, func(line string) {
		p.sink.Publish(ctx, deploymentID, line)
	})
	if err != nil {
		p.logger.Warn("output stream ended with error", "deployment_id", deploymentID, "error", err)
	}
}

func (p *Provisioner) watch(req Request, containerID string, stopStream context.CancelFunc, exited chan<- int64) {
	ctx := context.Background()
	code, err := p.docker.WaitExit(ctx, containerID)
	if err != nil {
		p.logger.Warn("container wait failed", "deployment_id", req.DeploymentID, "error", err)
	}
	// Let the log stream drain before tearing it down.
	time.Sleep(500 * time.Millisecond)
	stopStream()

	if code != 0 {
		p.sink.Publish(ctx, req.DeploymentID, fmt.Sprintf("error: process exited with status %d", code))
	} else {
		p.sink.Publish(ctx, req.DeploymentID, "process exited")
	}
	// Stale LIVE_PROCESS bindings must be gone before the subdomain is reused.
	if err := p.bindings.Remove(ctx, req.Subdomain, containerID); err != nil {
		p.logger.Warn("binding removal failed", "subdomain", req.Subdomain, "error", err)
	}
	exited <- code
}

// Teardown stops and removes the environment and its subdomain binding.
// Idempotent: tearing down an already-gone environment is not an error.
func (p *Provisioner) Teardown(ctx context.Context, containerRef, subdomain string) error {
	if err := p.docker.StopAndRemove(ctx, containerRef); err != nil {
		return err
	}
	if subdomain != "" {
		if err := p.bindings.Remove(ctx, subdomain, containerRef); err != nil {
			return err
		}
	}
	return nil
}
