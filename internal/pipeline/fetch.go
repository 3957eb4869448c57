package pipeline

import (
	"context"
	"errors"
	"strings"
)

// RunFetchTranscribe downloads the source, extracts audio and transcribes it.
// A job that already has a transcript is returned as is without touching the
// stage clients. Both failures are terminal for the job; calling again on a
// failed job retries from the start and clears the failure. A run cut short
// by the caller's cancellation puts the job back to pending instead.
func (s *Service) RunFetchTranscribe(ctx context.Context, ownerID uint64, jobID string) (*Job, error) {
	unlock, err := s.lock(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.HasTranscript() {
		return job, nil
	}
	if !s.canStartFetch(job) {
		return nil, Errorf(KindStaleState, StageFetch, "job %s is %s", job.ID, job.StageState)
	}

	job, err = s.store.TransitionJob(ctx, job.ID, job.StageState, job.Version, StateFetching, JobPatch{ClearFailure: true, ClearLastError: true})
	if err != nil {
		return nil, err
	}

	fetched, err := s.fetch(ctx, job.SourceURL)
	if err != nil {
		if callerGone(ctx) {
			return nil, s.interrupted(ctx, job, StageFetch, err)
		}
		return nil, s.failJob(ctx, job, stageFailure(KindVideoProcessing, StageFetch, err))
	}
	defer fetched.Cleanup()

	job, err = s.store.TransitionJob(ctx, job.ID, StateFetching, job.Version, StateTranscribing, JobPatch{})
	if err != nil {
		return nil, err
	}

	tr, err := s.transcribe(ctx, fetched.AudioPath)
	if err != nil {
		if callerGone(ctx) {
			return nil, s.interrupted(ctx, job, StageTranscribe, err)
		}
		return nil, s.failJob(ctx, job, stageFailure(KindTranscriptionService, StageTranscribe, err))
	}

	job, err = s.store.TransitionJob(ctx, job.ID, StateTranscribing, job.Version, StateTranscribed, JobPatch{Transcript: tr})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("[RunFetchTranscribe] job=%s owner=%d chars=%d lang=%s", job.ID, ownerID, len(tr.Text), tr.Language)
	return job, nil
}

// callerGone reports a cancelled caller. A stage deadline leaves the caller's
// context intact and still counts as a stage failure.
func callerGone(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// interrupted returns an in-flight job to pending without recording a failure,
// so the next run starts it over.
func (s *Service) interrupted(ctx context.Context, job *Job, stage Stage, err error) error {
	_, terr := s.store.TransitionJob(context.WithoutCancel(ctx), job.ID, job.StageState, job.Version, StatePending, JobPatch{})
	if terr != nil {
		s.logger.Printf("[interrupted] job=%s persist revert err=%v", job.ID, terr)
	}
	s.logger.Printf("[interrupted] job=%s stage=%s back_to=%s err=%v", job.ID, stage, StatePending, err)
	return Wrap(KindInternal, stage, "interrupted", err)
}

func (s *Service) canStartFetch(job *Job) bool {
	switch job.StageState {
	case StatePending, StateFailed:
		return true
	case StateFetching, StateTranscribing:
		return s.reclaimable(job)
	default:
		return false
	}
}

func (s *Service) fetch(ctx context.Context, sourceURL string) (*FetchResult, error) {
	if s.stages.Fetcher == nil {
		return nil, Errorf(KindVideoProcessing, StageFetch, "no video fetcher configured")
	}
	fctx, cancel := s.stageContext(ctx)
	defer cancel()

	res, err := s.stages.Fetcher.Fetch(fctx, sourceURL, s.opts.MaxVideoBytes)
	if err != nil {
		if res != nil && res.Cleanup != nil {
			res.Cleanup()
		}
		return nil, err
	}
	if res == nil || res.AudioPath == "" {
		if res != nil && res.Cleanup != nil {
			res.Cleanup()
		}
		return nil, Errorf(KindVideoProcessing, StageFetch, "fetcher returned no audio")
	}
	if res.Cleanup == nil {
		res.Cleanup = func() {}
	}
	return res, nil
}

func (s *Service) transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	if s.stages.Transcriber == nil {
		return nil, Errorf(KindTranscriptionService, StageTranscribe, "no transcriber configured")
	}
	tctx, cancel := s.stageContext(ctx)
	defer cancel()

	tr, err := s.stages.Transcriber.Transcribe(tctx, audioPath, s.opts.Language)
	if err != nil {
		return nil, err
	}
	if tr == nil || strings.TrimSpace(tr.Text) == "" {
		return nil, Errorf(KindTranscriptionService, StageTranscribe, "empty transcript")
	}
	return tr, nil
}
