package auditevent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Recorder appends access events to the audit trail without ever blocking or
// failing the operation that produced them. Events are queued and written by
// a background worker with retries; a write that still fails after retries is
// escalated through the process logger. An allow-path event that cannot be
// persisted is an operational alarm, a failed deny-path write is logged at
// lower severity.
type Recorder struct {
	repo    Repository
	logger  zerolog.Logger
	queue   chan *AccessEvent
	retries int
	backoff time.Duration
	nowFn   func() time.Time

	wg       sync.WaitGroup
	closing  sync.Once
	draining chan struct{}
}

func NewRecorder(repo Repository, logger zerolog.Logger, queueSize, retries int) *Recorder {
	r := &Recorder{
		repo:     repo,
		logger:   logger,
		queue:    make(chan *AccessEvent, queueSize),
		retries:  retries,
		backoff:  100 * time.Millisecond,
		nowFn:    time.Now,
		draining: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues an event for persistence. It never blocks: when the queue
// is saturated the event is written inline on a fresh goroutine so that it is
// not lost, and the saturation itself is logged.
func (r *Recorder) Record(ev *AccessEvent) {
	if ev.Recorded.IsZero() {
		ev.Recorded = r.nowFn().UTC()
	}

	select {
	case r.queue <- ev:
	default:
		r.logger.Error().
			Str("action", ev.Action).
			Msg("audit queue saturated, writing event inline")
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.write(ev)
		}()
	}
}

// Close drains the queue and stops the worker. Call during shutdown so that
// queued events reach storage.
func (r *Recorder) Close() {
	r.closing.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for ev := range r.queue {
		r.write(ev)
	}
}

func (r *Recorder) write(ev *AccessEvent) {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.backoff * time.Duration(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = r.repo.Insert(ctx, ev)
		cancel()
		if err == nil {
			return
		}
	}

	evt := r.logger.Warn()
	if ev.Outcome == OutcomeSuccess {
		// Losing the record of a granted access is the compliance incident
		// the retention policy cares most about.
		evt = r.logger.Error().Bool("alarm", true)
	}
	evt.Err(err).
		Str("action", ev.Action).
		Str("outcome", ev.Outcome).
		Str("actor_ref", ev.ActorRef).
		Msg("audit write failed after retries")
}
