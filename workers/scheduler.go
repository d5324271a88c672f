// Package workers runs persisted background jobs: a scheduler that claims
// due jobs from the job table and the handlers that process them.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/vidpod/vidpod/models"
)

// A Handler processes one attempt of a job. Returning an error marks the
// attempt failed; the scheduler decides whether to retry or bury the job.
type Handler interface {
	Process(ctx context.Context, job *models.Job) error
}

// Options are the scheduler tunables. The zero value of any field is
// replaced with its default; nothing here is hard-coded in the loop.
type Options struct {
	// MaxAttempts is the number of times a job is attempted before it is
	// marked terminally failed.
	MaxAttempts int
	// BackoffBase is the delay after the first failed attempt; it doubles
	// per attempt up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Concurrency bounds the number of jobs processed in parallel.
	Concurrency int
	// AttemptTimeout bounds a single handler invocation. A handler that
	// never returns is failed and retried like any other error.
	AttemptTimeout time.Duration
	// PollInterval is how long an idle worker waits before looking for
	// work again.
	PollInterval time.Duration

	// OnSuccess and OnError are observation hooks for logging and metrics.
	// They do not affect the retry decision. OnError's terminal flag is
	// true when the job has exhausted its attempts.
	OnSuccess func(job *models.Job)
	OnError   func(job *models.Job, err error, terminal bool)
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
}

// A Scheduler claims pending jobs and dispatches them to the handler
// registered for their kind. Multiple schedulers can share one job table;
// the claim is a guarded state transition, so a job is only ever processed
// by one of them.
type Scheduler struct {
	env      *models.Env
	jobs     *models.Jobs
	handlers map[models.JobKind]Handler
	opts     Options
}

// NewScheduler returns a scheduler dispatching to the given handlers.
// Every registered kind must be a known job kind, and every known kind
// must have a handler, so an enqueued job can never be undispatchable.
func NewScheduler(env *models.Env, opts Options, handlers map[models.JobKind]Handler) (*Scheduler, error) {
	opts.setDefaults()
	for kind, handler := range handlers {
		if !kind.Valid() {
			return nil, fmt.Errorf("handler registered for unknown job kind %q", kind)
		}
		if handler == nil {
			return nil, fmt.Errorf("nil handler for job kind %q", kind)
		}
	}
	for _, kind := range []models.JobKind{models.JobKindActivityBroadcast} {
		if _, ok := handlers[kind]; !ok {
			return nil, fmt.Errorf("no handler for job kind %q", kind)
		}
	}
	return &Scheduler{
		env:      env,
		jobs:     models.NewJobs(env.DB),
		handlers: handlers,
		opts:     opts,
	}, nil
}

// Run dispatches jobs until ctx is canceled. Cancellation is a graceful
// drain: workers stop claiming new jobs and in-flight attempts run to
// completion or to their own timeout.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.env.Log()
	log.Info("job scheduler started",
		slog.Int("concurrency", s.opts.Concurrency),
		slog.Int("max_attempts", s.opts.MaxAttempts))
	defer log.Info("job scheduler stopped")

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatchLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reapLoop(ctx)
	}()
	wg.Wait()
	return nil
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		claimed, err := s.runOnce(ctx)
		if err != nil {
			s.env.Log().Error("claim job", err)
		}
		if claimed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}

// runOnce claims and processes at most one due job, reporting whether one
// was claimed.
func (s *Scheduler) runOnce(ctx context.Context) (bool, error) {
	job, err := s.jobs.ClaimNext()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	s.process(job)
	return true, nil
}

func (s *Scheduler) process(job *models.Job) {
	log := s.env.Log().With(
		slog.Uint64("job_id", uint64(job.ID)),
		slog.String("job_kind", string(job.Kind)))

	// The attempt is detached from the run context so that shutdown drains
	// in-flight jobs instead of aborting them; the timeout still bounds a
	// handler that never returns.
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AttemptTimeout)
	defer cancel()

	err := s.attempt(ctx, job)
	if err == nil {
		if err := s.jobs.Succeed(job); err != nil {
			log.Error("mark job succeeded", err)
			return
		}
		log.Info("job succeeded", slog.Int("attempts", job.Attempts))
		if s.opts.OnSuccess != nil {
			s.opts.OnSuccess(job)
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= s.opts.MaxAttempts {
		if err := s.jobs.Bury(job, err); err != nil {
			log.Error("bury job", err)
			return
		}
		log.Warn("job failed permanently", slog.Int("attempts", attempts), slog.String("error", err.Error()))
		if s.opts.OnError != nil {
			s.opts.OnError(job, err, true)
		}
		return
	}

	delay := s.backoff(attempts)
	if retryErr := s.jobs.Retry(job, err, time.Now().Add(delay)); retryErr != nil {
		log.Error("reschedule job", retryErr)
		return
	}
	log.Warn("job attempt failed",
		slog.Int("attempt", attempts),
		slog.Duration("retry_in", delay),
		slog.String("error", err.Error()))
	if s.opts.OnError != nil {
		s.opts.OnError(job, err, false)
	}
}

// attempt invokes the handler for the job's kind, converting a handler
// panic into a failed attempt so one bad job cannot take down the loop.
func (s *Scheduler) attempt(ctx context.Context, job *models.Job) (err error) {
	handler, ok := s.handlers[job.Kind]
	if !ok {
		// cannot happen: enqueue and NewScheduler both validate kinds
		return fmt.Errorf("no handler for job kind %q", job.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler.Process(ctx, job)
}

// backoff returns the delay before the given attempt number is retried:
// BackoffBase doubled per failed attempt, capped at BackoffCap.
func (s *Scheduler) backoff(attempt int) time.Duration {
	delay := s.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.opts.BackoffCap {
			return s.opts.BackoffCap
		}
	}
	if delay > s.opts.BackoffCap {
		return s.opts.BackoffCap
	}
	return delay
}

// reapLoop periodically returns jobs stuck in processing to pending. A job
// can only get stuck if a scheduler died mid-attempt, so the threshold is
// the attempt timeout plus a grace period.
func (s *Scheduler) reapLoop(ctx context.Context) {
	threshold := s.opts.AttemptTimeout + time.Minute
	ticker := time.NewTicker(s.opts.AttemptTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := s.jobs.Reap(time.Now().Add(-threshold))
			if err != nil {
				s.env.Log().Error("reap stale jobs", err)
				continue
			}
			if reaped > 0 {
				s.env.Log().Warn("reclaimed stale jobs", slog.Int64("count", reaped))
			}
		}
	}
}
