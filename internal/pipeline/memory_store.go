package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/suPer8Hu/vidblog/internal/models"
)

// MemoryStore keeps jobs in process memory. Used for tests and local runs
// without a database.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]Job
	artifacts map[string]BlogArtifact
	targets   map[uint64]models.PublishTarget
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]Job),
		artifacts: make(map[string]BlogArtifact),
		targets:   make(map[uint64]models.PublishTarget),
		now:       time.Now,
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return Errorf(KindValidation, "", "job %s already exists", job.ID)
	}
	now := s.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	return &j, nil
}

func (s *MemoryStore) TransitionJob(ctx context.Context, id string, from StageState, version uint64, to StageState, patch JobPatch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, from, version, to, patch)
}

func (s *MemoryStore) transitionLocked(id string, from StageState, version uint64, to StageState, patch JobPatch) (*Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	if j.StageState != from || j.Version != version {
		return nil, staleErr(id, from, version)
	}
	applyPatch(&j, patch)
	j.StageState = to
	j.Version++
	j.UpdatedAt = s.now().UTC()
	s.jobs[id] = j
	return &j, nil
}

func (s *MemoryStore) GetArtifact(ctx context.Context, jobID string) (*BlogArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[jobID]
	if !ok {
		return nil, notFound("blog for job", jobID)
	}
	return &a, nil
}

func (s *MemoryStore) CompleteGeneration(ctx context.Context, job *Job, artifact *BlogArtifact) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[job.ID]; exists {
		return nil, staleErr(job.ID, StateGenerating, job.Version)
	}
	updated, err := s.transitionLocked(job.ID, StateGenerating, job.Version, StateGenerated, JobPatch{ClearLastError: true})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	artifact.JobID = job.ID
	artifact.WordCount = CountWords(artifact.Content)
	if artifact.PublishState == "" {
		artifact.PublishState = PublishDraft
	}
	artifact.CreatedAt, artifact.UpdatedAt = now, now
	s.artifacts[job.ID] = *artifact
	return updated, nil
}

func (s *MemoryStore) MarkPublished(ctx context.Context, job *Job, postRef, postURL string) (*Job, *BlogArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[job.ID]
	if !ok {
		return nil, nil, notFound("blog for job", job.ID)
	}
	if a.PublishState != PublishDraft {
		return nil, nil, staleErr(job.ID, StatePublishing, job.Version)
	}
	updated, err := s.transitionLocked(job.ID, StatePublishing, job.Version, StateCompleted, JobPatch{ClearLastError: true})
	if err != nil {
		return nil, nil, err
	}
	a.PublishState = PublishPublished
	a.ExternalPostRef = &postRef
	a.ExternalURL = &postURL
	a.UpdatedAt = s.now().UTC()
	s.artifacts[job.ID] = a
	return updated, &a, nil
}

func (s *MemoryStore) GetPublishTarget(ctx context.Context, ownerID uint64) (*models.PublishTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[ownerID]
	if !ok {
		return nil, Errorf(KindNotFound, "", "no publish target for owner %d", ownerID)
	}
	return &t, nil
}

func (s *MemoryStore) SavePublishTarget(ctx context.Context, target *models.PublishTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if prev, ok := s.targets[target.OwnerID]; ok {
		target.ID, target.CreatedAt = prev.ID, prev.CreatedAt
	} else {
		target.ID = uint64(len(s.targets) + 1)
		target.CreatedAt = now
	}
	target.UpdatedAt = now
	s.targets[target.OwnerID] = *target
	return nil
}
