// Package main is the entry point for the boring-ui provisioner.
// The provisioner is the "Muscle" agent that drives queued jobs through the
// sandbox pipeline. It owns concurrency, the step-timeout sweep, and the
// sandbox backend.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/boringdata/boring-ui/internal/artifact"
	"github.com/boringdata/boring-ui/internal/config"
	"github.com/boringdata/boring-ui/internal/logger"
	"github.com/boringdata/boring-ui/internal/observability"
	"github.com/boringdata/boring-ui/internal/provision"
	"github.com/boringdata/boring-ui/internal/sandbox"
	"github.com/boringdata/boring-ui/internal/store/postgres"
	"github.com/boringdata/boring-ui/internal/worker"
)

func main() {
	agentID := flag.String("id", "", "Agent identifier (default: hostname)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "boring-ui-provisioner", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Select sandbox backend based on configuration
	var provider sandbox.Provider
	switch cfg.SandboxProvider {
	case "kubernetes":
		k8sProvider, err := sandbox.NewKubernetesProvider(sandbox.KubernetesConfig{
			Namespace:          cfg.KubernetesNamespace,
			Image:              cfg.SandboxImage,
			ServiceAccount:     cfg.KubernetesServiceAccount,
			DefaultCPULimit:    cfg.KubernetesCPULimit,
			DefaultMemoryLimit: cfg.KubernetesMemoryLimit,
		})
		if err != nil {
			log.Fatalf("Failed to create Kubernetes sandbox provider: %v", err)
		}
		provider = k8sProvider
		log.Printf("Using kubernetes sandboxes (namespace: %s)", cfg.KubernetesNamespace)
	case "docker":
		fallthrough
	default:
		dockerProvider, err := sandbox.NewDockerProvider(sandbox.DockerConfig{
			Image: cfg.SandboxImage,
		})
		if err != nil {
			log.Fatalf("Failed to create Docker sandbox provider: %v", err)
		}
		provider = dockerProvider
		log.Println("Using docker sandboxes")
	}

	releases := artifact.NewReleaseStore(cfg.ReleaseStoreRoot)

	// The S3 mirror is optional; without it releases must be published
	// straight into the local store.
	var mirror *artifact.S3Mirror
	if cfg.ReleaseS3Endpoint != "" {
		mirror, err = artifact.NewS3Mirror(artifact.S3Config{
			Endpoint:  cfg.ReleaseS3Endpoint,
			AccessKey: cfg.ReleaseS3AccessKey,
			SecretKey: cfg.ReleaseS3SecretKey,
			Bucket:    cfg.ReleaseS3Bucket,
			UseSSL:    cfg.ReleaseS3UseSSL,
		}, releases)
		if err != nil {
			log.Fatalf("Failed to create S3 release mirror: %v", err)
		}
		log.Printf("Mirroring releases from s3 bucket %s", cfg.ReleaseS3Bucket)
	}

	executor := provision.NewExecutor(pg, pg, pg, releases, provider, slogger)

	id := *agentID
	if id == "" {
		id, _ = os.Hostname()
	}
	agent := worker.New(pg, executor, releases, mirror, worker.AgentConfig{
		ID:           id,
		Concurrency:  cfg.ProvisionerConcurrency,
		PollInterval: cfg.ProvisionerPollInterval,
		MaxBackoff:   cfg.ProvisionerMaxBackoff,
	}, slogger)

	log.Printf("Provisioner started with concurrency %d", cfg.ProvisionerConcurrency)
	go agent.Run(ctx)

	sweeper := provision.NewSweeper(pg, pg, pg, cfg.SweepInterval, slogger)
	go sweeper.Run(ctx)

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Provisioner metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down provisioner...")
	cancel()

	<-agent.Done()
}
