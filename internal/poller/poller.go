// Package poller queries a job's status on a fixed cadence until it reaches a
// terminal step, too many queries fail in a row, or the caller stops it.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

const (
	DefaultInterval   = 3 * time.Second
	DefaultMaxRetries = 10
)

// ErrStopped is returned by Refetch once Stop has been called.
var ErrStopped = errors.New("poller stopped")

// Stepper is any status value that can be projected to a processing step.
type Stepper interface {
	ProcessingStep() pipeline.ProcessingStep
}

type StatusFunc[T Stepper] func(ctx context.Context) (T, error)

type Options[T Stepper] struct {
	Interval time.Duration
	// MaxRetries bounds consecutive failed queries. Job failures are results,
	// not query failures.
	MaxRetries int
	// OnUpdate and OnError may be called from the polling goroutine or from
	// Refetch, but never concurrently with each other.
	OnUpdate func(T)
	OnError  func(err error, consecutive int)
}

type Poller[T Stepper] struct {
	fetch StatusFunc[T]
	opts  Options[T]

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	last     T
	lastErr  error
	failures int

	// notify serializes callbacks
	notify sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
	exited   chan struct{}
}

func New[T Stepper](fetch StatusFunc[T], opts Options[T]) *Poller[T] {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Poller[T]{
		fetch:  fetch,
		opts:   opts,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Start issues the first query immediately and then one per Interval. It is a
// no-op when already started or stopped.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop ends polling. It is safe to call at any time and more than once; a
// query still in flight is cancelled and its result discarded.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.finish()
}

// Done is closed once polling has ended for any reason.
func (p *Poller[T]) Done() <-chan struct{} { return p.done }

// Result returns the last status received and the last query error. The error
// is cleared by every successful query.
func (p *Poller[T]) Result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.lastErr
}

// Wait blocks until polling ends or ctx is done, then returns Result.
func (p *Poller[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Refetch queries once outside the cadence. Its failures do not count toward
// MaxRetries and the ticker is left alone; a terminal result ends polling.
func (p *Poller[T]) Refetch(ctx context.Context) (T, error) {
	var zero T
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return zero, ErrStopped
	}

	v, err := p.fetch(ctx)
	if err != nil {
		return zero, err
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return zero, ErrStopped
	}
	p.last = v
	cancel := p.cancel
	p.mu.Unlock()

	p.update(v)
	if v.ProcessingStep().Terminal() {
		if cancel != nil {
			cancel()
		}
		p.finish()
	}
	return v, nil
}

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.exited)
	defer p.finish()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		if p.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll runs one query and reports whether polling should end.
func (p *Poller[T]) poll(ctx context.Context) bool {
	v, err := p.fetch(ctx)

	p.mu.Lock()
	if p.stopped || ctx.Err() != nil {
		p.mu.Unlock()
		return true
	}
	if err != nil {
		p.failures++
		p.lastErr = err
		n := p.failures
		p.mu.Unlock()

		if p.opts.OnError != nil {
			p.notify.Lock()
			p.opts.OnError(err, n)
			p.notify.Unlock()
		}
		return n >= p.opts.MaxRetries
	}
	p.failures = 0
	p.lastErr = nil
	p.last = v
	p.mu.Unlock()

	p.update(v)
	return v.ProcessingStep().Terminal()
}

func (p *Poller[T]) update(v T) {
	if p.opts.OnUpdate == nil {
		return
	}
	p.notify.Lock()
	defer p.notify.Unlock()
	p.opts.OnUpdate(v)
}

func (p *Poller[T]) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}
