package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/store/rabbitmq"
)

type fakeResumer struct {
	err   error
	calls int
}

func (f *fakeResumer) Resume(ctx context.Context, ownerID uint64, jobID string) (*pipeline.StatusView, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.StatusView{Step: pipeline.StepCompleted}, nil
}

type retryCall struct {
	msg   rabbitmq.JobMessage
	delay time.Duration
}

type fakeRetrier struct {
	calls []retryCall
	err   error
}

func (f *fakeRetrier) PublishRetry(ctx context.Context, msg rabbitmq.JobMessage, delay time.Duration) error {
	f.calls = append(f.calls, retryCall{msg: msg, delay: delay})
	return f.err
}

func newProcessor(res *fakeResumer, ret *fakeRetrier) *Processor {
	return NewProcessor(res, ret, Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Logger:      log.New(io.Discard, "", 0),
	})
}

func body(t *testing.T, m rabbitmq.JobMessage) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandle_Success(t *testing.T) {
	res := &fakeResumer{}
	p := newProcessor(res, &fakeRetrier{})
	if got := p.Handle(context.Background(), body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 1})); got != Ack {
		t.Fatalf("expected ack, got %s", got)
	}
	if res.calls != 1 {
		t.Fatalf("expected one resume, got %d", res.calls)
	}
}

func TestHandle_BadMessage(t *testing.T) {
	res := &fakeResumer{}
	p := newProcessor(res, &fakeRetrier{})
	for _, b := range [][]byte{[]byte("{"), []byte(`{"job_id":"j1"}`), []byte(`{"owner_id":1}`)} {
		if got := p.Handle(context.Background(), b); got != DeadLetter {
			t.Fatalf("%s: expected dead-letter, got %s", b, got)
		}
	}
	if res.calls != 0 {
		t.Fatalf("bad messages must not reach the pipeline")
	}
}

func TestHandle_Outcomes(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		want    Outcome
		retries int
	}{
		{"transcription failure is terminal", pipeline.Errorf(pipeline.KindTranscriptionService, pipeline.StageTranscribe, "boom"), Ack, 0},
		{"video failure is terminal", pipeline.Errorf(pipeline.KindVideoProcessing, pipeline.StageFetch, "boom"), Ack, 0},
		{"validation", pipeline.Errorf(pipeline.KindValidation, pipeline.StagePublish, "no target"), Ack, 0},
		{"not found", pipeline.ErrNotFound, Ack, 0},
		{"generation retried", pipeline.Errorf(pipeline.KindGenerationService, pipeline.StageGenerate, "502"), Retried, 1},
		{"stale retried", pipeline.Errorf(pipeline.KindStaleState, pipeline.StageGenerate, "busy"), Retried, 1},
		{"internal", errors.New("db down"), DeadLetter, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ret := &fakeRetrier{}
			p := newProcessor(&fakeResumer{err: tc.err}, ret)
			got := p.Handle(context.Background(), body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 1}))
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
			if len(ret.calls) != tc.retries {
				t.Fatalf("expected %d retries, got %d", tc.retries, len(ret.calls))
			}
		})
	}
}

func TestHandle_RetryAttemptsAndDelay(t *testing.T) {
	ret := &fakeRetrier{}
	p := newProcessor(&fakeResumer{err: pipeline.Errorf(pipeline.KindPublishService, pipeline.StagePublish, "503")}, ret)

	if got := p.Handle(context.Background(), body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 4, Attempt: 1})); got != Retried {
		t.Fatalf("expected retried, got %s", got)
	}
	c := ret.calls[0]
	if c.msg.Attempt != 2 || c.msg.OwnerID != 4 || c.delay != 2*time.Second {
		t.Fatalf("unexpected retry %+v", c)
	}

	// the last allowed attempt goes to the DLQ
	if got := p.Handle(context.Background(), body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 4, Attempt: 2})); got != DeadLetter {
		t.Fatalf("expected dead-letter, got %s", got)
	}
}

func TestHandle_RateLimitHint(t *testing.T) {
	ret := &fakeRetrier{}
	rl := &pipeline.Error{Kind: pipeline.KindRateLimit, Stage: pipeline.StageGenerate, RetryAfter: 40 * time.Second}
	p := newProcessor(&fakeResumer{err: rl}, ret)

	if got := p.Handle(context.Background(), body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 1})); got != Retried {
		t.Fatalf("expected retried, got %s", got)
	}
	if ret.calls[0].delay != 40*time.Second {
		t.Fatalf("expected server hint to win, got %s", ret.calls[0].delay)
	}
}

func TestHandle_RetryPublishFails(t *testing.T) {
	ret := &fakeRetrier{err: errors.New("channel closed")}
	p := newProcessor(&fakeResumer{err: pipeline.Errorf(pipeline.KindGenerationService, pipeline.StageGenerate, "502")}, ret)
	if got := p.Handle(context.Background(), body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 1})); got != DeadLetter {
		t.Fatalf("expected dead-letter, got %s", got)
	}
}

func TestBackoff(t *testing.T) {
	p := newProcessor(&fakeResumer{}, &fakeRetrier{})
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, w := range want {
		if got := p.backoff(attempt, 0); got != w {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, w, got)
		}
	}
}

func TestHandle_ShutdownRequeues(t *testing.T) {
	ret := &fakeRetrier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pipeline.Wrap(pipeline.KindInternal, pipeline.StageFetch, "interrupted", context.Canceled)
	p := newProcessor(&fakeResumer{err: err}, ret)
	if got := p.Handle(ctx, body(t, rabbitmq.JobMessage{JobID: "j1", OwnerID: 1})); got != Requeue {
		t.Fatalf("expected requeue, got %s", got)
	}
	if len(ret.calls) != 0 {
		t.Fatalf("no retry copy expected, got %d", len(ret.calls))
	}
}
