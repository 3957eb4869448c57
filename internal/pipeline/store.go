package pipeline

import (
	"context"

	"github.com/suPer8Hu/vidblog/internal/models"
)

// JobPatch carries the fields a stage writes together with its transition.
type JobPatch struct {
	Transcript       *Transcription
	Failure          *Reason
	LastError        *Reason
	ClearFailure     bool
	ClearLastError   bool
	PublishRequested *bool
}

// Store persists jobs and their artifacts. Every transition names the state
// and version it expects; a mismatch fails with ErrStaleState and writes nothing.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	TransitionJob(ctx context.Context, id string, from StageState, version uint64, to StageState, patch JobPatch) (*Job, error)

	GetArtifact(ctx context.Context, jobID string) (*BlogArtifact, error)
	// CompleteGeneration stores the artifact and moves job generating -> generated.
	CompleteGeneration(ctx context.Context, job *Job, artifact *BlogArtifact) (*Job, error)
	// MarkPublished flips the artifact draft -> published and moves job publishing -> completed.
	MarkPublished(ctx context.Context, job *Job, postRef, postURL string) (*Job, *BlogArtifact, error)

	GetPublishTarget(ctx context.Context, ownerID uint64) (*models.PublishTarget, error)
	SavePublishTarget(ctx context.Context, target *models.PublishTarget) error
}

func staleErr(id string, from StageState, version uint64) error {
	return Errorf(KindStaleState, "", "job %s is no longer %s@%d", id, from, version)
}

func notFound(what, id string) error {
	return Errorf(KindNotFound, "", "%s %s not found", what, id)
}

func applyPatch(j *Job, patch JobPatch) {
	if t := patch.Transcript; t != nil && j.Transcript == nil {
		text := t.Text
		j.Transcript = &text
		j.TranscriptLanguage = t.Language
		j.TranscriptConfidence = t.Confidence
		j.DurationSeconds = t.DurationSeconds
	}
	if patch.ClearFailure {
		j.Failure = Reason{}
	}
	if patch.Failure != nil {
		j.Failure = *patch.Failure
	}
	if patch.ClearLastError {
		j.LastError = Reason{}
	}
	if patch.LastError != nil {
		j.LastError = *patch.LastError
	}
	if patch.PublishRequested != nil {
		j.PublishRequested = *patch.PublishRequested
	}
}
