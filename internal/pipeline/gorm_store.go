package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/vidblog/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateJob(ctx context.Context, job *Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *GormStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("job", id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *GormStore) TransitionJob(ctx context.Context, id string, from StageState, version uint64, to StageState, patch JobPatch) (*Job, error) {
	var out *Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		j, err := transitionTx(tx, id, from, version, to, patch)
		out = j
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transitionTx applies a guarded UPDATE ... WHERE id = ? AND stage_state = ? AND version = ?.
func transitionTx(tx *gorm.DB, id string, from StageState, version uint64, to StageState, patch JobPatch) (*Job, error) {
	updates := map[string]any{
		"stage_state": to,
		"version":     gorm.Expr("version + 1"),
		"updated_at":  time.Now().UTC(),
	}

	q := tx.Model(&Job{}).Where("id = ? AND stage_state = ? AND version = ?", id, from, version)
	if t := patch.Transcript; t != nil {
		// set once
		q = q.Where("transcript IS NULL")
		updates["transcript"] = t.Text
		updates["transcript_language"] = t.Language
		updates["transcript_confidence"] = t.Confidence
		updates["duration_seconds"] = t.DurationSeconds
	}
	if patch.ClearFailure {
		setReason(updates, "failure_", Reason{})
	}
	if patch.Failure != nil {
		setReason(updates, "failure_", *patch.Failure)
	}
	if patch.ClearLastError {
		setReason(updates, "last_error_", Reason{})
	}
	if patch.LastError != nil {
		setReason(updates, "last_error_", *patch.LastError)
	}
	if patch.PublishRequested != nil {
		updates["publish_requested"] = *patch.PublishRequested
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("transition job %s %s->%s: %w", id, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := tx.Model(&Job{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
			return nil, fmt.Errorf("transition job %s: %w", id, err)
		}
		if cnt == 0 {
			return nil, notFound("job", id)
		}
		return nil, staleErr(id, from, version)
	}

	var j Job
	if err := tx.First(&j, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("reload job %s: %w", id, err)
	}
	return &j, nil
}

func setReason(updates map[string]any, prefix string, r Reason) {
	updates[prefix+"kind"] = r.Kind
	updates[prefix+"stage"] = r.Stage
	updates[prefix+"message"] = r.Message
}

func (s *GormStore) GetArtifact(ctx context.Context, jobID string) (*BlogArtifact, error) {
	var a BlogArtifact
	if err := s.db.WithContext(ctx).First(&a, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("blog for job", jobID)
		}
		return nil, fmt.Errorf("get blog artifact: %w", err)
	}
	return &a, nil
}

func (s *GormStore) CompleteGeneration(ctx context.Context, job *Job, artifact *BlogArtifact) (*Job, error) {
	var out *Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		j, err := transitionTx(tx, job.ID, StateGenerating, job.Version, StateGenerated, JobPatch{ClearLastError: true})
		if err != nil {
			return err
		}
		artifact.JobID = job.ID
		if artifact.PublishState == "" {
			artifact.PublishState = PublishDraft
		}
		if err := tx.Create(artifact).Error; err != nil {
			return fmt.Errorf("create blog artifact: %w", err)
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) MarkPublished(ctx context.Context, job *Job, postRef, postURL string) (*Job, *BlogArtifact, error) {
	var (
		outJob *Job
		outArt BlogArtifact
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// UpdateColumns skips hooks; content is untouched so WordCount stays valid
		res := tx.Model(&BlogArtifact{}).
			Where("job_id = ? AND publish_state = ?", job.ID, PublishDraft).
			UpdateColumns(map[string]any{
				"publish_state":     PublishPublished,
				"external_post_ref": postRef,
				"external_url":      postURL,
				"updated_at":        time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("mark published: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return staleErr(job.ID, StatePublishing, job.Version)
		}
		j, err := transitionTx(tx, job.ID, StatePublishing, job.Version, StateCompleted, JobPatch{ClearLastError: true})
		if err != nil {
			return err
		}
		if err := tx.First(&outArt, "job_id = ?", job.ID).Error; err != nil {
			return fmt.Errorf("reload blog artifact: %w", err)
		}
		outJob = j
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outJob, &outArt, nil
}

func (s *GormStore) GetPublishTarget(ctx context.Context, ownerID uint64) (*models.PublishTarget, error) {
	var t models.PublishTarget
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindNotFound, "", "no publish target for owner %d", ownerID)
		}
		return nil, fmt.Errorf("get publish target: %w", err)
	}
	return &t, nil
}

// SavePublishTarget upserts the single target row of an owner.
func (s *GormStore) SavePublishTarget(ctx context.Context, target *models.PublishTarget) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"site_url", "username", "app_password", "updated_at"}),
	}).Create(target).Error
	if err != nil {
		return fmt.Errorf("save publish target: %w", err)
	}
	return nil
}
