package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suPer8Hu/vidblog/internal/models"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

func newSite(t *testing.T, handler http.HandlerFunc) *models.PublishTarget {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &models.PublishTarget{SiteURL: srv.URL + "/", Username: "editor", AppPassword: "abcd efgh"}
}

func checkAuth(w http.ResponseWriter, r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "editor" || pass != "abcdefgh" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func TestTestConnection(t *testing.T) {
	target := newSite(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/users/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if checkAuth(w, r) {
			_, _ = w.Write([]byte(`{"id":1}`))
		}
	})
	c := NewClient()

	ok, err := c.TestConnection(context.Background(), target)
	if err != nil || !ok {
		t.Fatalf("expected accepted credentials, got %v %v", ok, err)
	}

	target.AppPassword = "wrong"
	ok, err = c.TestConnection(context.Background(), target)
	if err != nil || ok {
		t.Fatalf("expected rejected credentials, got %v %v", ok, err)
	}
}

func TestTestConnection_ServerError(t *testing.T) {
	target := newSite(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := NewClient().TestConnection(context.Background(), target)
	if !errors.Is(err, pipeline.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	var got postReq
	target := newSite(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/wp-json/wp/v2/posts" || !checkAuth(w, r) {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42,"link":"https://blog.example.com/?p=42"}`))
	})

	post, err := NewClient().Publish(context.Background(), target, pipeline.PostInput{Title: "Hello", Content: "<p>hi</p>", Status: "draft"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if post.ExternalID != "42" || post.URL != "https://blog.example.com/?p=42" {
		t.Fatalf("unexpected post %+v", post)
	}
	if got.Title != "Hello" || got.Status != "draft" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestPublish_Errors(t *testing.T) {
	cases := []struct {
		status int
		want   pipeline.Kind
	}{
		{http.StatusUnauthorized, pipeline.KindAuthentication},
		{http.StatusTooManyRequests, pipeline.KindRateLimit},
		{http.StatusInternalServerError, pipeline.KindExternalService},
	}
	for _, tc := range cases {
		target := newSite(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := NewClient().Publish(context.Background(), target, pipeline.PostInput{Title: "t", Content: "c", Status: "publish"})
		if pipeline.KindOf(err) != tc.want {
			t.Fatalf("status %d: got %s, want %s", tc.status, pipeline.KindOf(err), tc.want)
		}
	}
}
