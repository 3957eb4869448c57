// Package client is a typed HTTP client for the vidblog API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// APIError is the error half of the response envelope.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (%d): %s, retry after %ds", e.Code, e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type Reason struct {
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

type Transcript struct {
	Text            string  `json:"text"`
	Language        string  `json:"language,omitempty"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type Blog struct {
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

type Job struct {
	JobID            string      `json:"job_id"`
	Step             string      `json:"step"`
	StageState       string      `json:"stage_state"`
	SourceURL        string      `json:"source_url,omitempty"`
	PublishRequested bool        `json:"publish_requested"`
	Transcript       *Transcript `json:"transcript,omitempty"`
	Blog             *Blog       `json:"blog,omitempty"`
	Failure          *Reason     `json:"failure,omitempty"`
	LastError        *Reason     `json:"last_error,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (j Job) ProcessingStep() pipeline.ProcessingStep { return pipeline.ProcessingStep(j.Step) }

type Target struct {
	SiteURL     string `json:"site_url"`
	Username    string `json:"username"`
	AppPassword string `json:"app_password"`
}

type WorkflowRequest struct {
	SourceURL string  `json:"source_url"`
	Publish   bool    `json:"publish"`
	TitleHint string  `json:"title_hint,omitempty"`
	Target    *Target `json:"target,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// WorkflowFailure is returned by Workflow when a stage failed after the job
// was created. Job holds the state the run reached.
type WorkflowFailure struct {
	*APIError
	Job         *Job
	FailedStage string
}

func (e *WorkflowFailure) Unwrap() error { return e.APIError }

func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	return c.token(ctx, "/users", email, password)
}

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.token(ctx, "/login", email, password)
}

func (c *Client) token(ctx context.Context, path, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) PutPublishTarget(ctx context.Context, t Target) error {
	return c.do(ctx, http.MethodPut, "/publish-target", t, nil)
}

// CreateJob submits a video. With async the server queues the job for a
// worker instead of waiting for explicit stage calls.
func (c *Client) CreateJob(ctx context.Context, sourceURL string, publish, async bool) (*Job, error) {
	path := "/jobs"
	if async {
		path += "?async=true"
	}
	var job Job
	body := map[string]any{"source_url": sourceURL, "publish": publish}
	if err := c.do(ctx, http.MethodPost, path, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	return c.jobCall(ctx, http.MethodGet, "/jobs/"+id, nil)
}

func (c *Client) ProcessJob(ctx context.Context, id string) (*Job, error) {
	return c.jobCall(ctx, http.MethodPost, "/jobs/"+id+"/process", nil)
}

func (c *Client) GenerateJob(ctx context.Context, id, titleHint string) (*Job, error) {
	return c.jobCall(ctx, http.MethodPost, "/jobs/"+id+"/generate", map[string]string{"title_hint": titleHint})
}

func (c *Client) GenerateInline(ctx context.Context, transcript, titleHint string) (*Job, error) {
	return c.jobCall(ctx, http.MethodPost, "/generate", map[string]string{"transcript": transcript, "title_hint": titleHint})
}

// PublishJob publishes to the stored target unless t overrides it.
func (c *Client) PublishJob(ctx context.Context, id string, t *Target, status string) (*Job, error) {
	body := map[string]any{}
	if t != nil {
		body["target"] = t
	}
	if status != "" {
		body["status"] = status
	}
	return c.jobCall(ctx, http.MethodPost, "/jobs/"+id+"/publish", body)
}

func (c *Client) Workflow(ctx context.Context, req WorkflowRequest) (*Job, error) {
	env, err := c.roundTrip(ctx, http.MethodPost, "/workflow", req)
	if err != nil {
		return nil, err
	}
	if env.Error != nil {
		var partial struct {
			Job         *Job   `json:"job"`
			FailedStage string `json:"failed_stage"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &partial) == nil && partial.Job != nil {
			return nil, &WorkflowFailure{APIError: env.Error, Job: partial.Job, FailedStage: partial.FailedStage}
		}
		return nil, env.Error
	}
	var job Job
	if err := json.Unmarshal(env.Data, &job); err != nil {
		return nil, fmt.Errorf("decode workflow job: %w", err)
	}
	return &job, nil
}

func (c *Client) jobCall(ctx context.Context, method, path string, body any) (*Job, error) {
	var job Job
	if err := c.do(ctx, method, path, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	env, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}
	if env.Error != nil {
		return env.Error
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (*envelope, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Code: "BAD_RESPONSE", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if !env.Success && env.Error == nil {
		env.Error = &APIError{Code: "BAD_RESPONSE", StatusCode: resp.StatusCode, Message: "request failed"}
	}
	return &env, nil
}
