package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/vidblog/internal/common"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/store/rabbitmq"
)

type reasonView struct {
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

type transcriptView struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type blogView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	WordCount      int      `json:"word_count"`
	SEOTitle       string   `json:"seo_title,omitempty"`
	SEODescription string   `json:"seo_description,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	PublishState   string   `json:"publish_state"`
	PostRef        *string  `json:"post_ref,omitempty"`
	PostURL        *string  `json:"post_url,omitempty"`
}

type jobView struct {
	JobID            string          `json:"job_id"`
	Step             string          `json:"step"`
	StageState       string          `json:"stage_state"`
	SourceURL        string          `json:"source_url,omitempty"`
	PublishRequested bool            `json:"publish_requested"`
	Transcript       *transcriptView `json:"transcript,omitempty"`
	Blog             *blogView       `json:"blog,omitempty"`
	Failure          *reasonView     `json:"failure,omitempty"`
	LastError        *reasonView     `json:"last_error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func reason(r pipeline.Reason) *reasonView {
	if r.IsZero() {
		return nil
	}
	return &reasonView{Code: r.Kind, Stage: r.Stage, Message: r.Message}
}

func newJobView(job *pipeline.Job, art *pipeline.BlogArtifact) *jobView {
	if job == nil {
		return nil
	}
	v := &jobView{
		JobID:            job.ID,
		Step:             string(pipeline.ProjectStep(job, art)),
		StageState:       string(job.StageState),
		SourceURL:        job.SourceURL,
		PublishRequested: job.PublishRequested,
		Failure:          reason(job.Failure),
		LastError:        reason(job.LastError),
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
	if job.HasTranscript() {
		v.Transcript = &transcriptView{
			Text:            *job.Transcript,
			Language:        job.TranscriptLanguage,
			Confidence:      job.TranscriptConfidence,
			DurationSeconds: job.DurationSeconds,
		}
	}
	if art != nil {
		b := &blogView{
			ID:             art.ID,
			Title:          art.Title,
			Content:        art.Content,
			WordCount:      art.WordCount,
			SEOTitle:       art.SEOTitle,
			SEODescription: art.SEODescription,
			PublishState:   string(art.PublishState),
			PostRef:        art.ExternalPostRef,
			PostURL:        art.ExternalURL,
		}
		if art.Keywords != "" {
			b.Keywords = strings.Split(art.Keywords, ",")
		}
		v.Blog = b
	}
	return v
}

// respondJob reloads the job so the response always reflects stored state.
func (h *Handler) respondJob(c *gin.Context, status int, uid uint64, jobID string) {
	view, err := h.Pipeline.Status(c.Request.Context(), uid, jobID)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, status, newJobView(view.Job, view.Artifact))
}

type createJobReq struct {
	SourceURL string `json:"source_url" binding:"required"`
	Publish   bool   `json:"publish"`
}

// CreateJob stores a pending job. With ?async=true the job is also queued for
// the worker, which runs every outstanding stage.
func (h *Handler) CreateJob(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "source_url required")
		return
	}
	async := c.Query("async") == "true"
	if async && h.Queue == nil {
		badRequest(c, "async processing is not enabled")
		return
	}

	job, err := h.Pipeline.CreateJob(c.Request.Context(), uid, req.SourceURL, req.Publish)
	if err != nil {
		failErr(c, err)
		return
	}
	status := http.StatusCreated
	if async {
		if err := h.Queue.PublishJob(c.Request.Context(), rabbitmq.JobMessage{JobID: job.ID, OwnerID: uid}); err != nil {
			failErr(c, pipeline.Wrap(pipeline.KindInternal, "", "enqueue job", err))
			return
		}
		status = http.StatusAccepted
	}
	common.OK(c, status, newJobView(job, nil))
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	h.respondJob(c, http.StatusOK, uid, c.Param("id"))
}

func (h *Handler) ProcessJob(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	job, err := h.Pipeline.RunFetchTranscribe(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	h.respondJob(c, http.StatusOK, uid, job.ID)
}

type generateReq struct {
	TitleHint  string `json:"title_hint"`
	Transcript string `json:"transcript"`
}

func (h *Handler) GenerateJob(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req generateReq
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	job, art, err := h.Pipeline.RunGenerate(c.Request.Context(), uid, pipeline.GenerateRequest{JobID: c.Param("id"), TitleHint: req.TitleHint})
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, newJobView(job, art))
}

// GenerateInline creates a transcript-only job from the posted transcript and
// generates its blog.
func (h *Handler) GenerateInline(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Transcript) == "" {
		badRequest(c, "transcript required")
		return
	}
	job, art, err := h.Pipeline.RunGenerate(c.Request.Context(), uid, pipeline.GenerateRequest{Transcript: req.Transcript, TitleHint: req.TitleHint})
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusCreated, newJobView(job, art))
}

// bindOptionalJSON binds the body when one is sent. An empty body, chunked or
// not, leaves req untouched.
func bindOptionalJSON(c *gin.Context, req any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type publishReq struct {
	Target *targetReq `json:"target"`
	Status string     `json:"status"`
}

func (h *Handler) PublishJob(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req publishReq
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	job, art, err := h.Pipeline.RunPublish(c.Request.Context(), uid, c.Param("id"), pipeline.PublishRequest{Target: req.Target.model(), Status: req.Status})
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, http.StatusOK, newJobView(job, art))
}

type workflowReq struct {
	SourceURL string     `json:"source_url" binding:"required"`
	Publish   bool       `json:"publish"`
	TitleHint string     `json:"title_hint"`
	Target    *targetReq `json:"target"`
	Status    string     `json:"status"`
}

// Workflow runs every stage in one request. A failure response still carries
// the job as far as it got, plus the failed stage.
func (h *Handler) Workflow(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	var req workflowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "source_url required")
		return
	}
	report, err := h.Pipeline.RunCompleteWorkflow(c.Request.Context(), uid, req.SourceURL, pipeline.WorkflowOptions{
		Publish:        req.Publish,
		TitleHint:      req.TitleHint,
		PublishRequest: pipeline.PublishRequest{Target: req.Target.model(), Status: req.Status},
	})
	if err != nil {
		if report == nil {
			failErr(c, err)
			return
		}
		common.FailWithData(c, errorBody(c, err), gin.H{
			"job":          newJobView(report.Job, report.Artifact),
			"failed_stage": report.FailedStage,
		})
		return
	}
	common.OK(c, http.StatusOK, newJobView(report.Job, report.Artifact))
}
