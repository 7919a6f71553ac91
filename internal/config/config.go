// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the control plane
	HTTPPort int

	// OTLP collector endpoint for tracing
	OTELEndpoint string

	// Provisioner-specific configuration
	ProvisionerConcurrency  int
	ProvisionerPollInterval time.Duration
	ProvisionerMaxBackoff   time.Duration

	// Interval of the step-timeout sweep
	SweepInterval time.Duration

	// Sandbox backend: "docker" or "kubernetes"
	SandboxProvider string
	SandboxImage    string

	KubernetesNamespace      string
	KubernetesServiceAccount string
	KubernetesCPULimit       string
	KubernetesMemoryLimit    string

	// Root directory of the local release store
	ReleaseStoreRoot string

	// Optional S3-compatible release mirror; enabled when the endpoint is set
	ReleaseS3Endpoint  string
	ReleaseS3AccessKey string
	ReleaseS3SecretKey string
	ReleaseS3Bucket    string
	ReleaseS3UseSSL    bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	port := 6171 // Default
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		port = p
	}

	concurrency := 2 // Default
	if s := os.Getenv("PROVISIONER_CONCURRENCY"); s != "" {
		c, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid PROVISIONER_CONCURRENCY: %w", err)
		}
		concurrency = c
	}

	pollInterval := 1 * time.Second
	if s := os.Getenv("PROVISIONER_POLL_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid PROVISIONER_POLL_INTERVAL: %w", err)
		}
		pollInterval = d
	}

	maxBackoff := 30 * time.Second
	if s := os.Getenv("PROVISIONER_MAX_BACKOFF"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid PROVISIONER_MAX_BACKOFF: %w", err)
		}
		maxBackoff = d
	}

	sweepInterval := 30 * time.Second
	if s := os.Getenv("SWEEP_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
		}
		sweepInterval = d
	}

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	provider := os.Getenv("SANDBOX_PROVIDER")
	if provider == "" {
		provider = "docker"
	}

	releaseRoot := os.Getenv("RELEASE_STORE_ROOT")
	if releaseRoot == "" {
		releaseRoot = "/var/lib/boring-ui/releases"
	}

	useSSL := false
	if s := os.Getenv("RELEASE_S3_USE_SSL"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid RELEASE_S3_USE_SSL: %w", err)
		}
		useSSL = b
	}

	return &Config{
		DatabaseURL:              dbURL,
		HTTPPort:                 port,
		OTELEndpoint:             otelEndpoint,
		ProvisionerConcurrency:   concurrency,
		ProvisionerPollInterval:  pollInterval,
		ProvisionerMaxBackoff:    maxBackoff,
		SweepInterval:            sweepInterval,
		SandboxProvider:          provider,
		SandboxImage:             os.Getenv("SANDBOX_IMAGE"),
		KubernetesNamespace:      os.Getenv("KUBERNETES_NAMESPACE"),
		KubernetesServiceAccount: os.Getenv("KUBERNETES_SERVICE_ACCOUNT"),
		KubernetesCPULimit:       os.Getenv("KUBERNETES_CPU_LIMIT"),
		KubernetesMemoryLimit:    os.Getenv("KUBERNETES_MEMORY_LIMIT"),
		ReleaseStoreRoot:         releaseRoot,
		ReleaseS3Endpoint:        os.Getenv("RELEASE_S3_ENDPOINT"),
		ReleaseS3AccessKey:       os.Getenv("RELEASE_S3_ACCESS_KEY"),
		ReleaseS3SecretKey:       os.Getenv("RELEASE_S3_SECRET_KEY"),
		ReleaseS3Bucket:          os.Getenv("RELEASE_S3_BUCKET"),
		ReleaseS3UseSSL:          useSSL,
	}, nil
}
