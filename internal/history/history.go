// Package history indexes completed reports and tracks which one is active.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/ashureev/maturity-report/internal/briefing"
	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/metrics"
	"github.com/ashureev/maturity-report/internal/normalize"
)

// DefaultCacheSize bounds the normalized-result cache.
const DefaultCacheSize = 64

var (
	// ErrNoPrevious is returned by SwapBack when no report was replaced yet.
	ErrNoPrevious = errors.New("no previous report")

	// ErrNilJob is returned by Activate when given no job.
	ErrNilJob = errors.New("job is nil")

	// ErrNotFound is returned by ActivateID for an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrNotCompleted is returned by ActivateID for a job List would not offer.
	ErrNotCompleted = errors.New("job not completed")
)

// JobSource lists and fetches jobs.
type JobSource interface {
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
}

// View is a normalized report ready for display and chat grounding.
type View struct {
	JobID    string                `json:"jobId"`
	Job      *domain.Job           `json:"job"`
	Result   domain.AnalysisResult `json:"result"`
	Briefing string                `json:"briefing"`
}

// Store keeps the active report and the one it replaced.
type Store struct {
	jobs   JobSource
	cache  *lru.Cache[string, *View]
	group  singleflight.Group
	logger *slog.Logger
	loads  atomic.Int64

	mu       sync.Mutex
	active   *View
	previous *View
}

// New builds a Store. cacheSize <= 0 uses DefaultCacheSize.
func New(jobs JobSource, cacheSize int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *View](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Store{jobs: jobs, cache: cache, logger: logger}, nil
}

// List returns completed jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.JobSummary, error) {
	jobs, err := s.jobs.ListJobs(ctx, domain.JobFilter{Status: domain.JobStatusCompleted, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	out := make([]domain.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		if j.Status != domain.JobStatusCompleted {
			continue
		}
		out = append(out, j.Summary())
	}
	return out, nil
}

func cacheKey(job *domain.Job) string {
	return job.ID + "@" + strconv.FormatInt(job.UpdatedAt.UnixNano(), 10)
}

// View returns the normalized view of job, normalizing at most once per job
// revision even under concurrent callers.
func (s *Store) View(job *domain.Job) *View {
	key := cacheKey(job)
	if v, ok := s.cache.Get(key); ok {
		metrics.NormalizeCacheLookups.WithLabelValues("hit").Inc()
		return v
	}
	metrics.NormalizeCacheLookups.WithLabelValues("miss").Inc()

	v, _, _ := s.group.Do(key, func() (any, error) {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		s.loads.Add(1)
		res := normalize.Normalize(job.Result)
		view := &View{
			JobID:    job.ID,
			Job:      job,
			Result:   res,
			Briefing: briefing.Build(job, res),
		}
		s.cache.Add(key, view)
		return view, nil
	})
	return v.(*View)
}

// Activate makes job the active report and returns it along with the report
// it replaced. Re-activating the active job changes nothing.
func (s *Store) Activate(job *domain.Job) (*View, *View, error) {
	if job == nil {
		return nil, nil, ErrNilJob
	}
	view := s.View(job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.JobID == view.JobID {
		s.active = view
		return s.active, s.previous, nil
	}
	s.previous = s.active
	s.active = view
	s.logger.Info("Report activated", "job_id", view.JobID)
	return s.active, s.previous, nil
}

// ActivateID fetches the job and activates it. Only completed jobs can be
// activated.
func (s *Store) ActivateID(ctx context.Context, id string) (*View, *View, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, nil, fmt.Errorf("activate %s: %w", id, ErrNotFound)
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, nil, fmt.Errorf("activate %s (status %q): %w", id, job.Status, ErrNotCompleted)
	}
	return s.Activate(job)
}

// Active returns the active report.
func (s *Store) Active() (*View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != nil
}

// Previous returns the report most recently replaced.
func (s *Store) Previous() (*View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previous, s.previous != nil
}

// SwapBack exchanges the active and previous reports without refetching or
// renormalizing either one.
func (s *Store) SwapBack() (*View, *View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previous == nil {
		return nil, nil, ErrNoPrevious
	}
	s.active, s.previous = s.previous, s.active
	s.logger.Info("Report swapped back", "job_id", s.active.JobID)
	return s.active, s.previous, nil
}
