// Package worker resumes queued pipeline jobs and decides what happens to
// each delivery afterwards.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"github.com/suPer8Hu/vidblog/internal/store/rabbitmq"
)

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	// Ack removes the message; the job needs nothing more from the queue.
	Ack Outcome = iota
	// Retried means a delayed copy was published and the original can be acked.
	Retried
	// DeadLetter rejects the message without requeue so it lands on the DLQ.
	DeadLetter
	// Requeue hands the message back to the broker untouched, for runs cut
	// short by shutdown.
	Requeue
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Retried:
		return "retried"
	case Requeue:
		return "requeue"
	default:
		return "dead-letter"
	}
}

type Resumer interface {
	Resume(ctx context.Context, ownerID uint64, jobID string) (*pipeline.StatusView, error)
}

type Retrier interface {
	PublishRetry(ctx context.Context, msg rabbitmq.JobMessage, delay time.Duration) error
}

type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *log.Logger
}

type Processor struct {
	jobs  Resumer
	retry Retrier
	opts  Options
	log   *log.Logger
}

func NewProcessor(jobs Resumer, retry Retrier, opts Options) *Processor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 5 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{jobs: jobs, retry: retry, opts: opts, log: logger}
}

// Handle resumes the job named by body. Retryable failures are re-published
// with a delay until MaxAttempts is reached.
func (p *Processor) Handle(ctx context.Context, body []byte) Outcome {
	var msg rabbitmq.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.JobID == "" || msg.OwnerID == 0 {
		p.log.Printf("[worker] bad message body=%q err=%v", body, err)
		return DeadLetter
	}

	start := time.Now()
	view, err := p.jobs.Resume(ctx, msg.OwnerID, msg.JobID)
	if err == nil {
		p.log.Printf("[worker] job=%s step=%s attempt=%d cost=%s", msg.JobID, view.Step, msg.Attempt, time.Since(start))
		return Ack
	}

	if ctx.Err() != nil {
		p.log.Printf("[worker] job=%s interrupted attempt=%d err=%v", msg.JobID, msg.Attempt, err)
		return Requeue
	}

	kind := pipeline.KindOf(err)
	p.log.Printf("[worker] job=%s attempt=%d kind=%s cost=%s err=%v", msg.JobID, msg.Attempt, kind, time.Since(start), err)

	switch {
	case retryable(kind):
	case kind == pipeline.KindInternal:
		return DeadLetter
	default:
		// terminal or caller-side; the job row already records the reason
		return Ack
	}

	if msg.Attempt+1 >= p.opts.MaxAttempts {
		p.log.Printf("[worker] job=%s giving up after %d attempts", msg.JobID, msg.Attempt+1)
		return DeadLetter
	}
	delay := p.backoff(msg.Attempt, pipeline.RetryAfterOf(err))
	next := rabbitmq.JobMessage{JobID: msg.JobID, OwnerID: msg.OwnerID, Attempt: msg.Attempt + 1}
	if err := p.retry.PublishRetry(context.WithoutCancel(ctx), next, delay); err != nil {
		p.log.Printf("[worker] job=%s retry publish failed err=%v", msg.JobID, err)
		return DeadLetter
	}
	p.log.Printf("[worker] job=%s retry attempt=%d in=%s", msg.JobID, next.Attempt, delay)
	return Retried
}

func retryable(k pipeline.Kind) bool {
	switch k {
	case pipeline.KindRateLimit, pipeline.KindStaleState,
		pipeline.KindGenerationService, pipeline.KindPublishService, pipeline.KindExternalService:
		return true
	default:
		return false
	}
}

// backoff doubles BaseDelay per attempt. A server-provided retry hint wins
// when it is longer.
func (p *Processor) backoff(attempt int, hint time.Duration) time.Duration {
	d := p.opts.BaseDelay
	for i := 0; i < attempt && d < p.opts.MaxDelay; i++ {
		d *= 2
	}
	if d > p.opts.MaxDelay {
		d = p.opts.MaxDelay
	}
	if hint > d {
		d = hint
	}
	return d
}
