// Package worker contains the provisioner agent that pulls queued jobs and
// drives them through the provisioning pipeline.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/boringdata/boring-ui/internal/artifact"
	"github.com/boringdata/boring-ui/internal/provision"
	"github.com/boringdata/boring-ui/internal/store"
)

// AgentConfig holds configuration for the provisioner agent.
type AgentConfig struct {
	ID           string
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when the queue is empty (default: 30s)
}

// Agent is the main provisioner agent that runs the pull-loop for queued
// provisioning jobs.
type Agent struct {
	jobs     store.JobRepository
	executor *provision.Executor
	releases *artifact.ReleaseStore
	mirror   *artifact.S3Mirror // optional; nil means local store only
	config   AgentConfig
	logger   *slog.Logger
	done     chan struct{}

	// Workspaces currently being provisioned by this agent. ListQueued does
	// not remove rows, so without this a slow job would be claimed twice by
	// consecutive polls. Cross-agent duplication is handled by the
	// compare-and-swap in the executor's first transition.
	inFlight sync.Map
}

// New creates a new provisioner agent. mirror may be nil when releases are
// published straight into the local store.
func New(jobs store.JobRepository, executor *provision.Executor, releases *artifact.ReleaseStore, mirror *artifact.S3Mirror, config AgentConfig, logger *slog.Logger) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	return &Agent{
		jobs:     jobs,
		executor: executor,
		releases: releases,
		mirror:   mirror,
		config:   config,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops claiming new work and allows in-flight provisioning
// runs to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting", "agent_id", a.config.ID, "concurrency", a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	// Helper to trigger immediate non-blocking re-poll
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	// Initial poll
	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("context cancelled, waiting for running jobs to finish")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			// Timer-based poll (with backoff)
			triggerPoll()

		case <-pollNow:
			// Count available slots
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			queued, err := a.jobs.ListQueued(ctx, availableSlots)
			if err != nil {
				a.logger.Error("failed to list queued jobs", "error", err)
				continue
			}

			claimed := 0
			for _, job := range queued {
				if _, busy := a.inFlight.LoadOrStore(job.WorkspaceID, struct{}{}); busy {
					continue
				}
				claimed++

				// Acquire semaphore slot
				sem <- struct{}{}

				wg.Add(1)
				go func(job store.ProvisioningJob) {
					defer wg.Done()
					defer func() {
						a.inFlight.Delete(job.WorkspaceID)
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					a.processJob(ctx, job)
				}(job)
			}

			if claimed == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = a.config.PollInterval
			a.logger.Info("claimed provisioning jobs", "count", claimed)

			// If we got jobs and there are still slots available, poll again immediately
			if claimed < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processJob resolves the job's release and runs the provisioning pipeline.
func (a *Agent) processJob(ctx context.Context, job store.ProvisioningJob) {
	logger := a.logger.With("workspace_id", job.WorkspaceID, "job_id", job.ID, "release_id", job.ReleaseID)
	logger.Info("processing provisioning job")

	// Once claimed, a job runs to a terminal state even if the agent is
	// draining; only the claim loop observes cancellation.
	execCtx := context.WithoutCancel(ctx)

	if a.mirror != nil {
		if err := a.mirror.EnsureLocal(execCtx, job.AppID, job.ReleaseID); err != nil {
			if errors.Is(err, artifact.ErrBundleNotFound) {
				// Let the executor fail the job through the state machine so
				// the error code and transition log are recorded.
				logger.Warn("release missing from bucket", "error", err)
			} else {
				// Transient mirror problem; leave the job queued for a later poll.
				logger.Error("failed to mirror release", "error", err)
				return
			}
		}
	}

	target := provision.Target{
		AppID:       job.AppID,
		WorkspaceID: job.WorkspaceID,
		ReleaseID:   job.ReleaseID,
		SandboxName: "ws-" + job.WorkspaceID,
	}
	if manifest, err := a.releases.ReadManifest(job.AppID, job.ReleaseID); err == nil {
		target.BundleSHA256 = manifest.BundleSHA256
	} else if !errors.Is(err, artifact.ErrBundleNotFound) {
		logger.Error("failed to read release manifest", "error", err)
		return
	}

	result, err := a.executor.Execute(execCtx, target)
	if err != nil {
		logger.Error("provisioning run aborted", "error", err)
		return
	}
	if !result.Success {
		logger.Warn("provisioning run failed",
			"error_code", result.ErrorCode, "error_detail", result.ErrorDetail)
		return
	}
	logger.Info("provisioning run succeeded", "attempt", result.Job.Attempt)
}
