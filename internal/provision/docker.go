package provision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DockerClient wraps the Docker SDK client with the operations the
// provisioner needs.
type DockerClient struct {
	inner *client.Client
}

// NewDockerClient creates a Docker client using environment defaults.
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerClient{inner: inner}, nil
}

// Ping validates connectivity to the Docker daemon.
func (c *DockerClient) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return fmt.Errorf("docker client not initialized")
	}
	ping, err := c.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases resources held by the Docker client.
func (c *DockerClient) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// PullOutputCallback is invoked with incremental image pull status lines.
type PullOutputCallback func(string)

// EnsureImage pulls the runtime image unless it is already present locally.
// The pull is a blocking, cacheable, one-time cost per image.
func (c *DockerClient) EnsureImage(ctx context.Context, ref string, onOutput PullOutputCallback) error {
	if _, _, err := c.inner.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	reader, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	for {
		var msg struct {
			Status      string `json:"status"`
			ID          string `json:"id"`
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decode pull output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("pull image %s: %s", ref, msg.Error)
		}
		if msg.ErrorDetail.Message != "" {
			return fmt.Errorf("pull image %s: %s", ref, msg.ErrorDetail.Message)
		}
		if msg.Status != "" && onOutput != nil {
			line := msg.Status
			if msg.ID != "" {
				line = msg.ID + " " + msg.Status
			}
			onOutput(line)
		}
	}
	return nil
}

// StartScript creates and starts a container running the provided shell
// program, with the fixed in-container port mapped to an OS-assigned host
// port. AutoRemove is always set: container teardown on process exit is the
// system's only filesystem reclamation mechanism.
func (c *DockerClient) StartScript(ctx context.Context, name, imageRef, script string, appPort int) (string, error) {
	port := nat.Port(fmt.Sprintf("%d/tcp", appPort))
	cfg := &container.Config{
		Image:        imageRef,
		Cmd:          []string{"/bin/bash", "-c", script},
		Tty:          true,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{port: []nat.PortBinding{{HostPort: "0"}}},
		AutoRemove:   true,
	}

	created, err := c.inner.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}
	if err := c.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("container start: %w", err)
	}
	return created.ID, nil
}

// HostPort inspects the running container until the app port's host binding
// appears. A missing mapping after the retry budget is fatal.
func (c *DockerClient) HostPort(ctx context.Context, containerID string, appPort int) (string, error) {
	port := nat.Port(fmt.Sprintf("%d/tcp", appPort))
	for attempt := 0; attempt < 10; attempt++ {
		inspect, err := c.inner.ContainerInspect(ctx, containerID)
		if err != nil {
			return "", fmt.Errorf("container inspect: %w", err)
		}
		if inspect.NetworkSettings != nil {
			for _, b := range inspect.NetworkSettings.Ports[port] {
				if strings.TrimSpace(b.HostPort) != "" {
					return b.HostPort, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("wait for host port: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("no host binding for %s on container %s", port, containerID)
}

// StreamOutput follows the container's combined stdout/stderr and invokes
// onLine per output line until the stream closes or ctx is cancelled.
func (c *DockerClient) StreamOutput(ctx context.Context, containerID string, onLine func(string)) error {
	reader, err := c.inner.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("attach container logs: %w", err)
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		onLine(line)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read container logs: %w", err)
	}
	return nil
}

// WaitExit blocks until the container stops and returns its exit code.
func (c *DockerClient) WaitExit(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := c.inner.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	for {
		select {
		case err := <-errCh:
			if err == nil {
				continue
			}
			if client.IsErrNotFound(err) {
				return 0, nil
			}
			return 0, fmt.Errorf("wait for container exit: %w", err)
		case status := <-statusCh:
			return status.StatusCode, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// StopAndRemove stops and removes the container. Stopping an already-stopped
// or already-removed container is not an error.
func (c *DockerClient) StopAndRemove(ctx context.Context, containerID string) error {
	if strings.TrimSpace(containerID) == "" {
		return nil
	}
	if err := c.inner.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container stop: %w", err)
	}
	// AutoRemove usually reclaims the container on stop; force-remove covers
	// the window where it has not happened yet.
	if err := c.inner.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil && !client.IsErrNotFound(err) {
		if strings.Contains(err.Error(), "already in progress") {
			return nil
		}
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}
