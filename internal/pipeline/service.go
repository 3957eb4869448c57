package pipeline

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/models"
)

type Options struct {
	MaxTranscriptChars int
	MaxVideoBytes      int64
	// StageTimeout bounds every remote call.
	StageTimeout time.Duration
	Language     string
	Logger       *log.Logger

	Now   func() time.Time
	NewID func() (string, error)
}

type Stages struct {
	Fetcher     VideoFetcher
	Transcriber Transcriber
	Generator   Generator
	Publisher   Publisher
}

// Service drives jobs through fetch-transcribe -> generate -> publish. Each
// operation runs synchronously in the caller's request and holds the job's
// lock for its whole duration.
type Service struct {
	store  Store
	stages Stages
	locks  *KeyedMutex
	opts   Options
	logger *log.Logger
}

func NewService(store Store, stages Stages, opts Options) *Service {
	if opts.MaxTranscriptChars <= 0 {
		opts.MaxTranscriptChars = 500000
	}
	if opts.MaxVideoBytes <= 0 {
		opts.MaxVideoBytes = 500 * 1024 * 1024
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = common.NewULID
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:  store,
		stages: stages,
		locks:  NewKeyedMutex(),
		opts:   opts,
		logger: logger,
	}
}

// CreateJob validates sourceURL and stores a pending job. Nothing is
// persisted when validation fails.
func (s *Service) CreateJob(ctx context.Context, ownerID uint64, sourceURL string, publish bool) (*Job, error) {
	if ownerID == 0 {
		return nil, Errorf(KindAuthentication, "", "caller identity is required")
	}
	if err := ValidateSourceURL(sourceURL); err != nil {
		return nil, err
	}
	id, err := s.opts.NewID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:               id,
		OwnerID:          ownerID,
		SourceURL:        strings.TrimSpace(sourceURL),
		StageState:       StatePending,
		PublishRequested: publish,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Printf("[CreateJob] job=%s owner=%d source=%s publish=%t", job.ID, ownerID, job.SourceURL, publish)
	return job, nil
}

type StatusView struct {
	Job      *Job
	Artifact *BlogArtifact
	Step     ProcessingStep
}

func (s *Service) Status(ctx context.Context, ownerID uint64, jobID string) (*StatusView, error) {
	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	art, err := s.artifactOrNil(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return &StatusView{Job: job, Artifact: art, Step: ProjectStep(job, art)}, nil
}

// Resume runs whatever stages a job still needs, relying on each stage's
// idempotency rule to skip finished work. Publish runs only when requested at
// creation.
func (s *Service) Resume(ctx context.Context, ownerID uint64, jobID string) (*StatusView, error) {
	job, err := s.RunFetchTranscribe(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.RunGenerate(ctx, ownerID, GenerateRequest{JobID: job.ID}); err != nil {
		return nil, err
	}
	if job.PublishRequested {
		if _, _, err := s.RunPublish(ctx, ownerID, job.ID, PublishRequest{}); err != nil {
			return nil, err
		}
	}
	return s.Status(ctx, ownerID, job.ID)
}

func (s *Service) PublishTarget(ctx context.Context, ownerID uint64) (*models.PublishTarget, error) {
	if ownerID == 0 {
		return nil, Errorf(KindAuthentication, "", "caller identity is required")
	}
	return s.store.GetPublishTarget(ctx, ownerID)
}

func (s *Service) SavePublishTarget(ctx context.Context, ownerID uint64, target *models.PublishTarget) error {
	if ownerID == 0 {
		return Errorf(KindAuthentication, "", "caller identity is required")
	}
	if err := validateTarget(target); err != nil {
		return err
	}
	target.OwnerID = ownerID
	return s.store.SavePublishTarget(ctx, target)
}

func validateTarget(t *models.PublishTarget) error {
	if t == nil {
		return Errorf(KindValidation, StagePublish, "publish target is required")
	}
	t.SiteURL = strings.TrimRight(strings.TrimSpace(t.SiteURL), "/")
	t.Username = strings.TrimSpace(t.Username)
	if t.SiteURL == "" || t.Username == "" || t.AppPassword == "" {
		return Errorf(KindValidation, StagePublish, "site url, username and app password are required")
	}
	u, err := url.Parse(t.SiteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Errorf(KindValidation, StagePublish, "site url must be an http(s) url")
	}
	return nil
}

// ownedJob hides jobs of other owners behind NotFound.
func (s *Service) ownedJob(ctx context.Context, ownerID uint64, jobID string) (*Job, error) {
	if ownerID == 0 {
		return nil, Errorf(KindAuthentication, "", "caller identity is required")
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, notFound("job", jobID)
	}
	return job, nil
}

func (s *Service) artifactOrNil(ctx context.Context, jobID string) (*BlogArtifact, error) {
	art, err := s.store.GetArtifact(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return art, err
}

func (s *Service) lock(ctx context.Context, jobID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, jobID)
	if err != nil {
		return nil, Wrap(KindInternal, "", "waiting for job lock", err)
	}
	return unlock, nil
}

// reclaimable reports whether a job left in an in-flight state by a crashed
// process may be restarted.
func (s *Service) reclaimable(job *Job) bool {
	return s.opts.Now().Sub(job.UpdatedAt) > 3*s.opts.StageTimeout
}

func (s *Service) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StageTimeout)
}

// failJob records a terminal failure before handing it back. The write uses a
// context detached from cancellation so the reason survives a gone caller.
func (s *Service) failJob(ctx context.Context, job *Job, stageErr *Error) error {
	reason := reasonFrom(stageErr)
	_, err := s.store.TransitionJob(context.WithoutCancel(ctx), job.ID, job.StageState, job.Version, StateFailed, JobPatch{Failure: &reason})
	if err != nil {
		s.logger.Printf("[failJob] job=%s persist failure err=%v stage_err=%v", job.ID, err, stageErr)
	}
	s.logger.Printf("[failJob] job=%s stage=%s kind=%s err=%v", job.ID, stageErr.Stage, stageErr.Kind, stageErr)
	return stageErr
}

// revertStage moves an in-flight job back to the state it can be retried
// from, keeping the failure in LastError.
func (s *Service) revertStage(ctx context.Context, job *Job, to StageState, stageErr *Error) error {
	reason := reasonFrom(stageErr)
	_, err := s.store.TransitionJob(context.WithoutCancel(ctx), job.ID, job.StageState, job.Version, to, JobPatch{LastError: &reason})
	if err != nil {
		s.logger.Printf("[revertStage] job=%s persist revert err=%v stage_err=%v", job.ID, err, stageErr)
	}
	s.logger.Printf("[revertStage] job=%s stage=%s kind=%s back_to=%s err=%v", job.ID, stageErr.Stage, stageErr.Kind, to, stageErr)
	return stageErr
}
