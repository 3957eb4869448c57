package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStore_ConcurrentTransitionOneWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := &Job{ID: "01JOBRACE00000000000000000", OwnerID: 1, StageState: StatePending}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.TransitionJob(ctx, job.ID, StatePending, 0, StateFetching, JobPatch{})
		}(i)
	}
	wg.Wait()

	var ok, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrStaleState):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || stale != 1 {
		t.Fatalf("expected one winner and one stale, got ok=%d stale=%d", ok, stale)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Version != 1 || got.StageState != StateFetching {
		t.Fatalf("unexpected job after race: %s@%d", got.StageState, got.Version)
	}
}

func TestMemoryStore_TranscriptSetOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job := &Job{ID: "01JOBONCE00000000000000000", OwnerID: 1, StageState: StateTranscribing}
	_ = s.CreateJob(ctx, job)

	j, err := s.TransitionJob(ctx, job.ID, StateTranscribing, 0, StateTranscribed, JobPatch{Transcript: &Transcription{Text: "first"}})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	j, err = s.TransitionJob(ctx, job.ID, StateTranscribed, j.Version, StateTranscribed, JobPatch{Transcript: &Transcription{Text: "second"}})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if *j.Transcript != "first" {
		t.Fatalf("transcript overwritten: %q", *j.Transcript)
	}
}

func TestMemoryStore_MissingJob(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetJob(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.TransitionJob(context.Background(), "missing", StatePending, 0, StateFetching, JobPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
