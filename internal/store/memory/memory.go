// Package memory provides in-memory reference implementations of the store
// contracts, used by tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/boringdata/boring-ui/internal/store"
)

// Store implements JobRepository, RuntimeMetadataStore, TransitionLog and
// TenantStore backed by maps. The job id counter and the active-job
// uniqueness check share one mutex, so check-and-insert is atomic exactly
// like the production unique constraint.
type Store struct {
	mu          sync.Mutex
	nextJobID   int64
	nextEventID int64
	jobs        map[int64]store.ProvisioningJob
	runtime     map[string]store.RuntimeMetadata
	events      []store.TransitionEvent
	tenants     map[string]store.Tenant // keyed by API key hash
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:    make(map[int64]store.ProvisioningJob),
		runtime: make(map[string]store.RuntimeMetadata),
		tenants: make(map[string]store.Tenant),
	}
}

// Ping implements the health-check hook; an in-memory store is always up.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// CreateJob assigns the next id and inserts the job, enforcing the
// single-active-job invariant under the same lock.
func (s *Store) CreateJob(ctx context.Context, job *store.ProvisioningJob) (*store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.State.Active() {
		for _, existing := range s.jobs {
			if existing.WorkspaceID == job.WorkspaceID && existing.State.Active() {
				return nil, store.ErrActiveJobExists
			}
		}
	}

	s.nextJobID++
	stored := *job
	stored.ID = s.nextJobID
	s.jobs[stored.ID] = stored

	out := stored
	return &out, nil
}

func (s *Store) GetJobByID(ctx context.Context, id int64) (*store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := job
	return &out, nil
}

func (s *Store) GetActiveForWorkspace(ctx context.Context, workspaceID string) (*store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.WorkspaceID == workspaceID && job.State.Active() {
			out := job
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, workspaceID, key string) (*store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.WorkspaceID == workspaceID && job.IdempotencyKey == key {
			out := job
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetLatestForWorkspace(ctx context.Context, workspaceID string) (*store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *store.ProvisioningJob
	for _, job := range s.jobs {
		if job.WorkspaceID != workspaceID {
			continue
		}
		if latest == nil || job.ID > latest.ID {
			j := job
			latest = &j
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListQueued(ctx context.Context, limit int) ([]store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var queued []store.ProvisioningJob
	for _, job := range s.jobs {
		if job.State == store.JobStateQueued {
			queued = append(queued, job)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].ID < queued[j].ID })
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (s *Store) ListActive(ctx context.Context) ([]store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []store.ProvisioningJob
	for _, job := range s.jobs {
		if job.State.Active() {
			active = append(active, job)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

// UpdateJob persists a transition with a compare-and-swap on fromState.
func (s *Store) UpdateJob(ctx context.Context, job *store.ProvisioningJob, fromState store.JobState) (*store.ProvisioningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if current.State != fromState {
		return nil, store.ErrStaleJob
	}
	s.jobs[job.ID] = *job

	out := *job
	return &out, nil
}

func (s *Store) UpsertRuntime(ctx context.Context, meta *store.RuntimeMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runtime[meta.WorkspaceID] = *meta
	return nil
}

func (s *Store) GetRuntime(ctx context.Context, workspaceID string) (*store.RuntimeMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.runtime[workspaceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := meta
	return &out, nil
}

func (s *Store) AppendTransition(ctx context.Context, event *store.TransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	stored := *event
	stored.ID = s.nextEventID
	s.events = append(s.events, stored)
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, workspaceID string) ([]store.TransitionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.TransitionEvent
	for _, event := range s.events {
		if event.WorkspaceID == workspaceID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (s *Store) CreateTenant(ctx context.Context, tenant *store.Tenant, hashedKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenants[hashedKey] = *tenant
	return nil
}

func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := tenant
	return &out, nil
}
