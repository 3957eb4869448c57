package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/suPer8Hu/vidblog/internal/models"
)

type fakeFetcher struct {
	calls    atomic.Int32
	cleanups atomic.Int32
	err      error
	block    bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceURL string, maxBytes int64) (*FetchResult, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &FetchResult{AudioPath: "/tmp/audio.wav", Cleanup: func() { f.cleanups.Add(1) }}, nil
}

type fakeTranscriber struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, language string) (*Transcription, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Transcription{Text: f.text, Language: "en", Confidence: 0.98, DurationSeconds: 12}, nil
}

type fakeGenerator struct {
	calls atomic.Int32
	mu    sync.Mutex
	n     int
	post  GeneratedPost
	err   error
	delay time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, transcript, titleHint string) (*GeneratedPost, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.n++
	n := f.n
	f.mu.Unlock()
	p := f.post
	if p.Title == "" {
		// distinct output per call so a regeneration would be visible
		p.Title = fmt.Sprintf("Post %d", n)
		p.Content = fmt.Sprintf("<p>[AD_TOP] body %d [AD_MID] more [AD_BOTTOM]</p>", n)
	}
	return &p, nil
}

type fakePublisher struct {
	testCalls    atomic.Int32
	publishCalls atomic.Int32
	connOK       bool
	connErr      error
	err          error
	lastStatus   string
}

func (f *fakePublisher) TestConnection(ctx context.Context, target *models.PublishTarget) (bool, error) {
	f.testCalls.Add(1)
	return f.connOK, f.connErr
}

func (f *fakePublisher) Publish(ctx context.Context, target *models.PublishTarget, post PostInput) (*PublishedPost, error) {
	n := f.publishCalls.Add(1)
	f.lastStatus = post.Status
	if f.err != nil {
		return nil, f.err
	}
	return &PublishedPost{ExternalID: fmt.Sprintf("wp-%d", 100+n), URL: "https://blog.example.com/?p=1"}, nil
}

type harness struct {
	svc   *Service
	store *MemoryStore
	fetch *fakeFetcher
	trans *fakeTranscriber
	gen   *fakeGenerator
	pub   *fakePublisher
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store: NewMemoryStore(),
		fetch: &fakeFetcher{},
		trans: &fakeTranscriber{text: "hello world"},
		gen:   &fakeGenerator{},
		pub:   &fakePublisher{connOK: true},
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	var seq atomic.Int64
	if opts.NewID == nil {
		opts.NewID = func() (string, error) {
			return fmt.Sprintf("01JOB%021d", seq.Add(1)), nil
		}
	}
	h.svc = NewService(h.store, Stages{
		Fetcher:     h.fetch,
		Transcriber: h.trans,
		Generator:   h.gen,
		Publisher:   h.pub,
	}, opts)
	return h
}

func (h *harness) saveTarget(t *testing.T, owner uint64) {
	t.Helper()
	err := h.svc.SavePublishTarget(context.Background(), owner, &models.PublishTarget{
		SiteURL:     "https://blog.example.com",
		Username:    "editor",
		AppPassword: "abcd efgh",
	})
	if err != nil {
		t.Fatalf("save target: %v", err)
	}
}

func (h *harness) jobCount() int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return len(h.store.jobs)
}
