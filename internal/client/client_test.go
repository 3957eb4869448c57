package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":   apiErr == nil,
		"data":      data,
		"error":     apiErr,
		"timestamp": "2026-01-01T00:00:00Z",
	})
}

func TestClient_LoginAndCreateJob(t *testing.T) {
	var gotAuth, gotQuery string
	var gotBody map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{"token": "tok-1", "expires_in": 86400}, nil)
	})
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeEnvelope(w, http.StatusAccepted, map[string]any{"job_id": "01J", "step": "fetching", "stage_state": "pending"}, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL+"/", "")
	tok, err := c.Login(context.Background(), "a@b.c", "password1")
	if err != nil || tok != "tok-1" {
		t.Fatalf("login: %q %v", tok, err)
	}
	c.Token = tok

	job, err := c.CreateJob(context.Background(), "https://example.com/v.mp4", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.JobID != "01J" || job.ProcessingStep() != pipeline.StepFetching {
		t.Fatalf("unexpected job %+v", job)
	}
	if gotAuth != "Bearer tok-1" || gotQuery != "async=true" {
		t.Fatalf("unexpected request auth=%q query=%q", gotAuth, gotQuery)
	}
	if gotBody["source_url"] != "https://example.com/v.mp4" || gotBody["publish"] != true {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusTooManyRequests, nil, &APIError{Code: "RATE_LIMIT_ERROR", Message: "slow down", StatusCode: 429, RetryAfter: 12})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t").GetJob(context.Background(), "01J")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "RATE_LIMIT_ERROR" || apiErr.RetryAfter != 12 {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClient_NonEnvelopeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t").GetJob(context.Background(), "01J")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway || apiErr.Code != "BAD_RESPONSE" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClient_WorkflowFailureCarriesJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadGateway, map[string]any{
			"job":          map[string]any{"job_id": "01J", "step": "failed", "failure": map[string]string{"code": "TRANSCRIPTION_SERVICE_ERROR", "message": "boom"}},
			"failed_stage": "transcribe",
		}, &APIError{Code: "TRANSCRIPTION_SERVICE_ERROR", Message: "boom", StatusCode: 502})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t").Workflow(context.Background(), WorkflowRequest{SourceURL: "https://example.com/v.mp4"})
	var wf *WorkflowFailure
	if !errors.As(err, &wf) {
		t.Fatalf("expected WorkflowFailure, got %v", err)
	}
	if wf.FailedStage != "transcribe" || wf.Job.JobID != "01J" || wf.Job.Failure.Code != "TRANSCRIPTION_SERVICE_ERROR" {
		t.Fatalf("unexpected failure %+v", wf)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 502 {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
}

func TestClient_PublishBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/01J/publish" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		ref := "77"
		writeEnvelope(w, http.StatusOK, Job{JobID: "01J", Step: "completed", Blog: &Blog{PublishState: "published", PostRef: &ref}}, nil)
	}))
	defer srv.Close()

	job, err := New(srv.URL, "t").PublishJob(context.Background(), "01J", nil, "draft")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := gotBody["target"]; ok || gotBody["status"] != "draft" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if !job.ProcessingStep().Terminal() || *job.Blog.PostRef != "77" {
		t.Fatalf("unexpected job %+v", job)
	}
}
