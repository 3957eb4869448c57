package pipeline

import "context"

type WorkflowOptions struct {
	Publish   bool
	TitleHint string
	PublishRequest
}

// WorkflowReport is the outcome of RunCompleteWorkflow. On failure Step is
// StepFailed and FailedStage names the stage that stopped the run.
type WorkflowReport struct {
	JobID       string
	Step        ProcessingStep
	FailedStage Stage
	Job         *Job
	Artifact    *BlogArtifact
	Err         error
}

// RunCompleteWorkflow creates a job and runs fetch-transcribe, generate and,
// when requested, publish in that order, stopping at the first failure.
// Validation errors on the source URL return no report since no job exists.
func (s *Service) RunCompleteWorkflow(ctx context.Context, ownerID uint64, sourceURL string, opts WorkflowOptions) (*WorkflowReport, error) {
	job, err := s.CreateJob(ctx, ownerID, sourceURL, opts.Publish)
	if err != nil {
		return nil, err
	}
	report := &WorkflowReport{JobID: job.ID, Job: job}

	if _, err := s.RunFetchTranscribe(ctx, ownerID, job.ID); err != nil {
		return s.failReport(ctx, ownerID, report, err)
	}
	job, art, err := s.RunGenerate(ctx, ownerID, GenerateRequest{JobID: job.ID, TitleHint: opts.TitleHint})
	if err != nil {
		return s.failReport(ctx, ownerID, report, err)
	}
	report.Job, report.Artifact = job, art

	if opts.Publish {
		job, art, err = s.RunPublish(ctx, ownerID, job.ID, opts.PublishRequest)
		if err != nil {
			return s.failReport(ctx, ownerID, report, err)
		}
		report.Job, report.Artifact = job, art
	}

	report.Step = ProjectStep(report.Job, report.Artifact)
	s.logger.Printf("[RunCompleteWorkflow] job=%s owner=%d step=%s", report.JobID, ownerID, report.Step)
	return report, nil
}

func (s *Service) failReport(ctx context.Context, ownerID uint64, r *WorkflowReport, err error) (*WorkflowReport, error) {
	r.Step = StepFailed
	r.FailedStage = asError(err).Stage
	r.Err = err
	if view, serr := s.Status(context.WithoutCancel(ctx), ownerID, r.JobID); serr == nil {
		r.Job, r.Artifact = view.Job, view.Artifact
	}
	s.logger.Printf("[RunCompleteWorkflow] job=%s owner=%d failed_stage=%s err=%v", r.JobID, ownerID, r.FailedStage, err)
	return r, err
}
