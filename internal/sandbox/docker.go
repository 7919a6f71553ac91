package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

const (
	// artifactDir is where bundles land inside the sandbox; the runtime
	// image's bootstrap script unpacks from here.
	artifactDir = "/opt/workspace"

	bootstrapScript   = "/opt/sandbox/bootstrap.sh"
	healthCheckScript = "/opt/sandbox/healthcheck.sh"
)

// DockerConfig holds configuration for the Docker provider.
type DockerConfig struct {
	// Image is the sandbox runtime image containing the bootstrap tooling.
	Image string
}

// DockerProvider implements Provider using the Docker SDK. One container
// per sandbox, named after it.
type DockerProvider struct {
	client *client.Client
	config DockerConfig
}

// NewDockerProvider creates a Docker-backed sandbox provider.
func NewDockerProvider(cfg DockerConfig) (*DockerProvider, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	if cfg.Image == "" {
		return nil, fmt.Errorf("sandbox image is required")
	}
	return &DockerProvider{client: cli, config: cfg}, nil
}

// CreateSandbox creates and starts the sandbox container.
func (d *DockerProvider) CreateSandbox(ctx context.Context, name string) error {
	// Check if the image exists locally first to save time.
	_, err := d.client.ImageInspect(ctx, d.config.Image)
	if err != nil {
		reader, err := d.client.ImagePull(ctx, d.config.Image, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", d.config.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image: d.config.Image,
		Labels: map[string]string{
			"app.kubernetes.io/managed-by": "boring-ui",
			"boring-ui/sandbox":            name,
		},
	}
	resp, err := d.client.ContainerCreate(ctx, containerConfig, nil, nil, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container %s: %w", name, err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

// UploadArtifact streams the bundle into the container's artifact
// directory. The Docker copy endpoint accepts a (optionally compressed)
// tar archive, which is exactly what the release bundle is.
func (d *DockerProvider) UploadArtifact(ctx context.Context, name, bundlePath string) error {
	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", bundlePath, err)
	}
	defer f.Close()

	err = d.client.CopyToContainer(ctx, name, artifactDir, f, container.CopyToContainerOptions{})
	if err != nil {
		return fmt.Errorf("failed to copy %s into %s: %w", filepath.Base(bundlePath), name, err)
	}
	return nil
}

// Bootstrap runs the runtime image's bootstrap script against the uploaded
// bundle.
func (d *DockerProvider) Bootstrap(ctx context.Context, name string) error {
	return d.execCheck(ctx, name, []string{bootstrapScript}, "bootstrap")
}

// HealthCheck verifies the container is running and its readiness probe
// passes.
func (d *DockerProvider) HealthCheck(ctx context.Context, name string) error {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return fmt.Errorf("container %s is not running", name)
	}
	return d.execCheck(ctx, name, []string{healthCheckScript}, "health check")
}

// GetSandbox returns the container's current state.
func (d *DockerProvider) GetSandbox(ctx context.Context, name string) (*Info, error) {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	running := inspect.State != nil && inspect.State.Running
	return &Info{Name: name, Running: running}, nil
}

// DeleteSandbox force-removes the container.
func (d *DockerProvider) DeleteSandbox(ctx context.Context, name string) error {
	err := d.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// execCheck runs a command in the container and fails on a non-zero exit.
func (d *DockerProvider) execCheck(ctx context.Context, name string, cmd []string, what string) error {
	exec, err := d.client.ContainerExecCreate(ctx, name, container.ExecOptions{Cmd: cmd})
	if err != nil {
		return fmt.Errorf("failed to create %s exec in %s: %w", what, name, err)
	}

	if err := d.client.ContainerExecStart(ctx, exec.ID, container.ExecStartOptions{}); err != nil {
		return fmt.Errorf("failed to start %s in %s: %w", what, name, err)
	}

	// The exec API is asynchronous; poll until the process exits.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		inspect, err := d.client.ContainerExecInspect(ctx, exec.ID)
		if err != nil {
			return fmt.Errorf("failed to inspect %s in %s: %w", what, name, err)
		}
		if !inspect.Running {
			if inspect.ExitCode != 0 {
				return fmt.Errorf("%s in %s exited with code %d", what, name, inspect.ExitCode)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
