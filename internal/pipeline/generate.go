package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

type GenerateRequest struct {
	// JobID selects a job with a stored transcript. When empty, Transcript is
	// used to create a transcript-only job.
	JobID      string
	Transcript string
	TitleHint  string
}

// RunGenerate turns a job's transcript into a blog artifact. An existing
// artifact is returned unchanged; generation never overwrites one. A remote
// failure leaves the job retryable in the transcribed state.
func (s *Service) RunGenerate(ctx context.Context, ownerID uint64, req GenerateRequest) (*Job, *BlogArtifact, error) {
	if ownerID == 0 {
		return nil, nil, Errorf(KindAuthentication, "", "caller identity is required")
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		job, err := s.createTranscriptJob(ctx, ownerID, req.Transcript)
		if err != nil {
			return nil, nil, err
		}
		jobID = job.ID
	}

	unlock, err := s.lock(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, nil, err
	}
	existing, err := s.artifactOrNil(ctx, job.ID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return job, existing, nil
	}

	if !job.HasTranscript() {
		return nil, nil, Errorf(KindValidation, StageGenerate, "job %s has no transcript yet", job.ID)
	}
	if err := s.checkTranscript(*job.Transcript); err != nil {
		return nil, nil, err
	}
	if !s.canStartGenerate(job) {
		return nil, nil, Errorf(KindStaleState, StageGenerate, "job %s is %s", job.ID, job.StageState)
	}

	job, err = s.store.TransitionJob(ctx, job.ID, job.StageState, job.Version, StateGenerating, JobPatch{ClearLastError: true})
	if err != nil {
		return nil, nil, err
	}

	post, err := s.generate(ctx, *job.Transcript, req.TitleHint)
	if err != nil {
		return nil, nil, s.revertStage(ctx, job, StateTranscribed, classify(KindGenerationService, StageGenerate, err))
	}

	title := strings.TrimSpace(post.Title)
	if title == "" {
		title = strings.TrimSpace(req.TitleHint)
	}
	if title == "" {
		title = "Untitled"
	}
	art := &BlogArtifact{
		ID:             uuid.NewString(),
		Title:          title,
		Content:        post.Content,
		WordCount:      CountWords(post.Content),
		SEOTitle:       post.SEO.Title,
		SEODescription: post.SEO.Description,
		Keywords:       strings.Join(post.SEO.Keywords, ","),
		PublishState:   PublishDraft,
	}
	job, err = s.store.CompleteGeneration(ctx, job, art)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Printf("[RunGenerate] job=%s owner=%d artifact=%s words=%d", job.ID, ownerID, art.ID, art.WordCount)
	return job, art, nil
}

func (s *Service) canStartGenerate(job *Job) bool {
	switch job.StageState {
	case StateTranscribed:
		return true
	case StateGenerating:
		return s.reclaimable(job)
	default:
		return false
	}
}

func (s *Service) checkTranscript(t string) error {
	if strings.TrimSpace(t) == "" {
		return Errorf(KindValidation, StageGenerate, "transcript is required")
	}
	if n := utf8.RuneCountInString(t); n > s.opts.MaxTranscriptChars {
		return Errorf(KindValidation, StageGenerate, "transcript has %d characters, limit is %d", n, s.opts.MaxTranscriptChars)
	}
	return nil
}

// createTranscriptJob stores a job that starts at transcribed, for callers
// that bring their own transcript.
func (s *Service) createTranscriptJob(ctx context.Context, ownerID uint64, transcript string) (*Job, error) {
	transcript = strings.TrimSpace(transcript)
	if err := s.checkTranscript(transcript); err != nil {
		return nil, err
	}
	id, err := s.opts.NewID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:         id,
		OwnerID:    ownerID,
		StageState: StateTranscribed,
		Transcript: &transcript,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Printf("[CreateJob] job=%s owner=%d source=inline-transcript chars=%d", job.ID, ownerID, len(transcript))
	return job, nil
}

func (s *Service) generate(ctx context.Context, transcript, titleHint string) (*GeneratedPost, error) {
	if s.stages.Generator == nil {
		return nil, Errorf(KindGenerationService, StageGenerate, "no generator configured")
	}
	gctx, cancel := s.stageContext(ctx)
	defer cancel()

	post, err := s.stages.Generator.Generate(gctx, transcript, strings.TrimSpace(titleHint))
	if err != nil {
		return nil, err
	}
	if post == nil || strings.TrimSpace(post.Content) == "" {
		return nil, Errorf(KindGenerationService, StageGenerate, "generator returned empty content")
	}
	return post, nil
}
