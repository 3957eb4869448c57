package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/vidblog/internal/models"
)

type PublishRequest struct {
	// Target overrides the owner's stored publish target.
	Target *models.PublishTarget
	// Status is the remote post status, "publish" (default) or "draft".
	Status string
}

// RunPublish pushes a job's draft artifact to the publish target, at most once
// per artifact: an already published artifact is returned with its existing
// post reference and the remote API is not called. A job left in publishing
// by a dead process can be taken over once it is reclaimable.
func (s *Service) RunPublish(ctx context.Context, ownerID uint64, jobID string, req PublishRequest) (*Job, *BlogArtifact, error) {
	unlock, err := s.lock(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	job, err := s.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, nil, err
	}
	art, err := s.artifactOrNil(ctx, job.ID)
	if err != nil {
		return nil, nil, err
	}
	if art == nil {
		return nil, nil, Errorf(KindValidation, StagePublish, "job %s has no generated blog", job.ID)
	}
	if art.PublishState == PublishPublished {
		return job, art, nil
	}
	if !s.canStartPublish(job) {
		return nil, nil, Errorf(KindStaleState, StagePublish, "job %s is %s", job.ID, job.StageState)
	}

	// precondition failures are kept in LastError so a requested publish
	// does not read as pending forever
	target, err := s.resolveTarget(ctx, ownerID, req.Target)
	if err != nil {
		return nil, nil, s.revertStage(ctx, job, StateGenerated, asError(err))
	}
	status, err := postStatus(req.Status)
	if err != nil {
		return nil, nil, s.revertStage(ctx, job, StateGenerated, asError(err))
	}
	if s.stages.Publisher == nil {
		return nil, nil, s.revertStage(ctx, job, StateGenerated, Errorf(KindPublishService, StagePublish, "no publisher configured"))
	}

	requested := true
	job, err = s.store.TransitionJob(ctx, job.ID, job.StageState, job.Version, StatePublishing, JobPatch{PublishRequested: &requested, ClearLastError: true})
	if err != nil {
		return nil, nil, err
	}

	if err := s.verifyTarget(ctx, target); err != nil {
		return nil, nil, s.revertStage(ctx, job, StateGenerated, err)
	}

	pctx, cancel := s.stageContext(ctx)
	post, err := s.stages.Publisher.Publish(pctx, target, PostInput{Title: art.Title, Content: art.Content, Status: status})
	cancel()
	if err != nil {
		return nil, nil, s.revertStage(ctx, job, StateGenerated, classify(KindPublishService, StagePublish, err))
	}
	if post == nil || post.ExternalID == "" {
		return nil, nil, s.revertStage(ctx, job, StateGenerated, Errorf(KindPublishService, StagePublish, "publisher returned no post id"))
	}

	done, published, err := s.store.MarkPublished(context.WithoutCancel(ctx), job, post.ExternalID, post.URL)
	if err != nil {
		// the remote post exists; a retry from generated may duplicate it
		s.logger.Printf("[RunPublish] job=%s remote_post=%s created but not recorded err=%v", jobID, post.ExternalID, err)
		msg := fmt.Sprintf("post %s was created but not recorded", post.ExternalID)
		return nil, nil, s.revertStage(ctx, job, StateGenerated, Wrap(KindInternal, StagePublish, msg, err))
	}
	s.logger.Printf("[RunPublish] job=%s owner=%d post=%s url=%s", done.ID, ownerID, post.ExternalID, post.URL)
	return done, published, nil
}

func (s *Service) canStartPublish(job *Job) bool {
	switch job.StageState {
	case StateGenerated:
		return true
	case StatePublishing:
		return s.reclaimable(job)
	default:
		return false
	}
}

// verifyTarget checks the connection before publishing. A rejected check is an
// AuthenticationError; a transport failure is a retryable PublishServiceError.
func (s *Service) verifyTarget(ctx context.Context, target *models.PublishTarget) *Error {
	vctx, cancel := s.stageContext(ctx)
	defer cancel()

	ok, err := s.stages.Publisher.TestConnection(vctx, target)
	if err != nil {
		return classify(KindPublishService, StagePublish, err)
	}
	if !ok {
		return Errorf(KindAuthentication, StagePublish, "connection check to %s failed, check the publish credentials", target.SiteURL)
	}
	return nil
}

func (s *Service) resolveTarget(ctx context.Context, ownerID uint64, override *models.PublishTarget) (*models.PublishTarget, error) {
	if override != nil {
		t := *override
		if err := validateTarget(&t); err != nil {
			return nil, err
		}
		t.OwnerID = ownerID
		return &t, nil
	}
	t, err := s.store.GetPublishTarget(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return nil, Errorf(KindValidation, StagePublish, "no publish target configured")
	}
	return t, err
}

func postStatus(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "publish":
		return "publish", nil
	case "draft":
		return "draft", nil
	default:
		return "", Errorf(KindValidation, StagePublish, "unsupported post status %q", v)
	}
}
