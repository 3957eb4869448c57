package pipeline

// ProcessingStep is the client-facing progress label.
type ProcessingStep string

const (
	StepFetching     ProcessingStep = "fetching"
	StepTranscribing ProcessingStep = "transcribing"
	StepGenerating   ProcessingStep = "generating"
	StepPublishing   ProcessingStep = "publishing"
	StepCompleted    ProcessingStep = "completed"
	StepFailed       ProcessingStep = "failed"
)

// Terminal reports whether polling should stop at this step.
func (s ProcessingStep) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// ProjectStep derives the processing step from persisted state only.
// artifact may be nil when no blog has been generated.
func ProjectStep(job *Job, artifact *BlogArtifact) ProcessingStep {
	switch {
	case job == nil:
		return StepFetching
	case job.StageState == StateFailed:
		return StepFailed
	case job.StageState == StatePending, job.StageState == StateFetching:
		// fetch and transcribe run as one phase; the download still reads as fetching
		return StepFetching
	case !job.HasTranscript():
		return StepTranscribing
	case artifact == nil:
		return StepGenerating
	case artifact.PublishState == PublishDraft && publishPending(job):
		return StepPublishing
	default:
		return StepCompleted
	}
}

// publishPending reports a publish that is running, or requested and not yet
// attempted. A failed attempt leaves LastError set and the job reads as
// completed with a draft.
func publishPending(job *Job) bool {
	if job.StageState == StatePublishing {
		return true
	}
	return job.PublishRequested && job.StageState == StateGenerated && job.LastError.IsZero()
}
