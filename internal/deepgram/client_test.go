package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFFfake"), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Token key" || r.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		if r.URL.Query().Get("detect_language") != "true" || r.URL.Query().Get("model") != "nova-2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFfake" {
			t.Errorf("unexpected body %q", body)
		}
		_, _ = w.Write([]byte(`{"metadata":{"duration":12.5},"results":{"channels":[{"detected_language":"en","alternatives":[{"transcript":" hello world ","confidence":0.97}]}]}}`))
	}))
	defer srv.Close()

	tr, err := NewClient(srv.URL, "key", "").Transcribe(context.Background(), writeAudio(t), "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if tr.Text != "hello world" || tr.Language != "en" || tr.Confidence != 0.97 || tr.DurationSeconds != 12.5 {
		t.Fatalf("unexpected transcription %+v", tr)
	}
}

func TestTranscribe_ExplicitLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("language") != "de" || r.URL.Query().Has("detect_language") {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hallo","confidence":0.9}]}]}}`))
	}))
	defer srv.Close()

	tr, err := NewClient(srv.URL, "key", "").Transcribe(context.Background(), writeAudio(t), "de")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if tr.Language != "de" {
		t.Fatalf("expected requested language, got %q", tr.Language)
	}
}

func TestTranscribe_ErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   pipeline.Kind
	}{
		{http.StatusUnauthorized, pipeline.KindAuthentication},
		{http.StatusTooManyRequests, pipeline.KindRateLimit},
		{http.StatusBadRequest, pipeline.KindValidation},
		{http.StatusBadGateway, pipeline.KindExternalService},
	}
	audio := writeAudio(t)
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(tc.status)
		}))
		_, err := NewClient(srv.URL, "key", "").Transcribe(context.Background(), audio, "")
		srv.Close()
		if pipeline.KindOf(err) != tc.want {
			t.Fatalf("status %d: got %s, want %s", tc.status, pipeline.KindOf(err), tc.want)
		}
		if tc.want == pipeline.KindRateLimit && pipeline.RetryAfterOf(err) != 3*time.Second {
			t.Fatalf("unexpected retry after %s", pipeline.RetryAfterOf(err))
		}
	}
}

func TestTranscribe_MissingKey(t *testing.T) {
	_, err := NewClient("", "", "").Transcribe(context.Background(), "/nope.wav", "")
	if !errors.Is(err, pipeline.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestTranscribe_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key", "").Transcribe(context.Background(), writeAudio(t), "")
	if !errors.Is(err, pipeline.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}
