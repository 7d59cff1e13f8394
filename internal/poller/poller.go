// Package poller watches a submitted analysis job until it reaches a terminal
// state, emitting progress along the way.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/metrics"
	"github.com/ashureev/maturity-report/internal/normalize"
)

// Defaults used when a Config field is zero.
const (
	DefaultInterval             = 5 * time.Second
	DefaultDeadline             = 15 * time.Minute
	DefaultTargetAttempts       = 36
	DefaultMaxConsecutiveErrors = 5

	maxProgress = 95
)

// ErrJobMissing is counted as a fetch error when the fetcher reports no row.
var ErrJobMissing = errors.New("job not found")

// JobFetcher reads the current state of a job.
type JobFetcher interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
}

// Config controls polling cadence and give-up thresholds.
type Config struct {
	Interval             time.Duration
	Deadline             time.Duration
	TargetAttempts       int
	MaxConsecutiveErrors int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.TargetAttempts <= 0 {
		c.TargetAttempts = DefaultTargetAttempts
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return c
}

// MaxAttempts is the number of fetches made before giving up.
func (c Config) MaxAttempts() int {
	c = c.withDefaults()
	n := int(c.Deadline / c.Interval)
	if n < 1 {
		n = 1
	}
	return n
}

// EventKind tags an Event.
type EventKind string

const (
	EventProgress    EventKind = "progress"
	EventCompleted   EventKind = "completed"
	EventFailed      EventKind = "failed"
	EventTimedOut    EventKind = "timed_out"
	EventUnreachable EventKind = "unreachable"
)

// Terminal reports whether no further events follow this kind.
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is one observation emitted by a poll loop.
type Event struct {
	Kind     EventKind              `json:"kind"`
	JobID    string                 `json:"jobId"`
	Attempt  int                    `json:"attempt"`
	Progress int                    `json:"progress"`
	Status   string                 `json:"status,omitempty"`
	Job      *domain.Job            `json:"-"`
	Result   *domain.AnalysisResult `json:"result,omitempty"`
	Lenient  bool                   `json:"lenient,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Poller runs poll loops against a JobFetcher.
type Poller struct {
	fetcher JobFetcher
	cfg     Config
	logger  *slog.Logger
}

// New creates a Poller. A nil logger uses slog.Default.
func New(fetcher JobFetcher, cfg Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: fetcher, cfg: cfg.withDefaults(), logger: logger}
}

// Poll blocks until the job reaches a terminal outcome or ctx is cancelled.
// The first fetch happens immediately. Exactly one terminal event is passed
// to emit unless ctx is cancelled first, in which case ctx.Err() is returned
// and nothing further is emitted.
func (p *Poller) Poll(ctx context.Context, jobID string, emit func(Event)) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	maxAttempts := p.cfg.MaxAttempts()
	log := p.logger.With("job_id", jobID)
	log.Debug("Poller started", "interval", p.cfg.Interval, "max_attempts", maxAttempts)

	var (
		attempts     int
		consecutive  int
		lastProgress int
	)

	for {
		if err := ctx.Err(); err != nil {
			log.Debug("Poller cancelled", "attempts", attempts)
			return err
		}

		attempts++
		metrics.PollAttempts.Inc()
		job, err := p.fetcher.GetJob(ctx, jobID)
		if err == nil && job == nil {
			err = ErrJobMissing
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			consecutive++
			log.Warn("Poll fetch failed", "attempt", attempts, "consecutive", consecutive, "error", err)
			if consecutive >= p.cfg.MaxConsecutiveErrors {
				p.finish(emit, Event{
					Kind:     EventUnreachable,
					JobID:    jobID,
					Attempt:  attempts,
					Progress: lastProgress,
					Error:    fmt.Sprintf("job service unreachable after %d consecutive errors: %v", consecutive, err),
				})
				return nil
			}
		} else {
			consecutive = 0
			if ev, done := p.evaluate(log, jobID, attempts, job); done {
				p.finish(emit, ev)
				return nil
			}

			progress := estimate(attempts, p.cfg.TargetAttempts)
			if progress < lastProgress {
				progress = lastProgress
			}
			lastProgress = progress
			emit(Event{
				Kind:     EventProgress,
				JobID:    jobID,
				Attempt:  attempts,
				Progress: progress,
				Status:   job.Status,
				Job:      job,
			})
		}

		if attempts >= maxAttempts {
			p.finish(emit, Event{
				Kind:     EventTimedOut,
				JobID:    jobID,
				Attempt:  attempts,
				Progress: lastProgress,
				Error:    fmt.Sprintf("analysis did not finish within %s", p.cfg.Deadline),
			})
			return nil
		}

		select {
		case <-ctx.Done():
			log.Debug("Poller cancelled", "attempts", attempts)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// evaluate decides whether a fetched job is terminal.
func (p *Poller) evaluate(log *slog.Logger, jobID string, attempt int, job *domain.Job) (Event, bool) {
	class := classify(job.Status)
	hasContent := normalize.HasContent(job.Result)

	switch {
	case class == statusFailed:
		msg := job.ErrorMessage
		if msg == "" {
			msg = "analysis failed"
		}
		return Event{Kind: EventFailed, JobID: jobID, Attempt: attempt, Status: job.Status, Job: job, Error: msg}, true

	case class == statusCompleted && hasContent:
		return p.completed(jobID, attempt, job, false), true

	case class == statusUnknown && hasContent:
		log.Warn("Lenient completion: unrecognised status with result payload", "status", job.Status, "attempt", attempt)
		metrics.LenientCompletions.Inc()
		return p.completed(jobID, attempt, job, true), true

	case class == statusCompleted:
		log.Debug("Job completed without payload, continuing", "attempt", attempt)
	}
	return Event{}, false
}

func (p *Poller) completed(jobID string, attempt int, job *domain.Job, lenient bool) Event {
	res := normalize.Normalize(job.Result)
	return Event{
		Kind:     EventCompleted,
		JobID:    jobID,
		Attempt:  attempt,
		Progress: 100,
		Status:   job.Status,
		Job:      job,
		Result:   &res,
		Lenient:  lenient,
	}
}

func (p *Poller) finish(emit func(Event), ev Event) {
	metrics.PollOutcomes.WithLabelValues(string(ev.Kind)).Inc()
	p.logger.Info("Poller finished", "job_id", ev.JobID, "outcome", ev.Kind, "attempts", ev.Attempt)
	emit(ev)
}

func estimate(attempts, target int) int {
	if target <= 0 {
		return 0
	}
	v := attempts * 100 / target
	if v > maxProgress {
		return maxProgress
	}
	return v
}

// Handle controls a poll loop started with Start.
type Handle struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Start runs Poll in its own goroutine. Events are delivered on the returned
// handle's channel, which is closed when the loop exits.
func (p *Poller) Start(ctx context.Context, jobID string) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		events: make(chan Event, 8),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer close(h.events)
		defer cancel()
		h.err = p.Poll(ctx, jobID, func(ev Event) {
			select {
			case h.events <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return h
}

// Events returns the event stream.
func (h *Handle) Events() <-chan Event { return h.events }

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Err returns the loop's exit error after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}
