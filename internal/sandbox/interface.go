// Package sandbox provides the Provider interface for workspace sandbox
// backends. Implementations include Docker and Kubernetes.
package sandbox

import "context"

// Provider manages the lifecycle of workspace sandboxes. Implementations
// must be safe for concurrent use; the control plane keys all operations by
// sandbox name so different workspaces never contend.
type Provider interface {
	// CreateSandbox creates and starts the sandbox.
	CreateSandbox(ctx context.Context, name string) error

	// UploadArtifact copies the release bundle at bundlePath into the sandbox.
	UploadArtifact(ctx context.Context, name, bundlePath string) error

	// Bootstrap unpacks and initializes the uploaded bundle.
	Bootstrap(ctx context.Context, name string) error

	// HealthCheck verifies the sandbox is up and serving.
	HealthCheck(ctx context.Context, name string) error

	// GetSandbox returns the current state of the sandbox.
	GetSandbox(ctx context.Context, name string) (*Info, error)

	// DeleteSandbox tears the sandbox down.
	DeleteSandbox(ctx context.Context, name string) error
}

// Info describes a live sandbox.
type Info struct {
	Name    string
	Running bool
	Address string // host:port of the sandbox agent, if known
}
