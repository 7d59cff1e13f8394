// Package report creates analysis jobs and reads them back.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/metrics"
	"github.com/ashureev/maturity-report/internal/store"
)

var (
	// ErrJobNotFound is returned when no job exists for an id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidProfile is returned when a submission lacks required fields.
	ErrInvalidProfile = errors.New("invalid company profile")
)

// Client is the entry point for job submission and lookup.
type Client struct {
	jobs    store.JobStore
	trigger Trigger
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewClient wires a job store and trigger. A nil trigger leaves jobs pending
// until something else picks them up.
func NewClient(jobs store.JobStore, trigger Trigger, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		jobs:    jobs,
		trigger: trigger,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Validate checks the fields required to start an analysis.
func Validate(p domain.CompanyProfile) error {
	if strings.TrimSpace(p.CompanyName) == "" {
		return fmt.Errorf("%w: company name is required", ErrInvalidProfile)
	}
	website := strings.TrimSpace(p.Website)
	if website == "" {
		return fmt.Errorf("%w: website is required", ErrInvalidProfile)
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: website %q is not a valid URL", ErrInvalidProfile, p.Website)
	}
	return nil
}

// Submit creates a pending job and triggers the external analysis. If the
// trigger fails the job is marked failed and the error returned.
func (c *Client) Submit(ctx context.Context, profile domain.CompanyProfile) (*domain.Job, error) {
	if err := Validate(profile); err != nil {
		metrics.JobsSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}

	now := c.now()
	job := &domain.Job{
		ID:        c.newID(),
		Status:    domain.JobStatusPending,
		Company:   profile,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		metrics.JobsSubmitted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create job: %w", err)
	}

	if c.trigger != nil {
		if err := c.trigger.Trigger(ctx, job); err != nil {
			metrics.JobsSubmitted.WithLabelValues("error").Inc()
			c.logger.Error("Failed to trigger analysis", "job_id", job.ID, "error", err)
			msg := "could not start analysis"
			if uerr := c.jobs.UpdateJobResult(ctx, job.ID, domain.JobStatusFailed, nil, msg); uerr != nil {
				c.logger.Warn("Failed to mark job failed", "job_id", job.ID, "error", uerr)
			}
			return nil, fmt.Errorf("trigger analysis: %w", err)
		}
	}

	metrics.JobsSubmitted.WithLabelValues("ok").Inc()
	c.logger.Info("Analysis job submitted", "job_id", job.ID, "company", profile.CompanyName)
	return job, nil
}

// GetJob fetches a job, returning ErrJobNotFound when it does not exist.
func (c *Client) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := c.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListCompleted returns completed jobs, newest first.
func (c *Client) ListCompleted(ctx context.Context, limit int) ([]*domain.Job, error) {
	jobs, err := c.jobs.ListJobs(ctx, domain.JobFilter{Status: domain.JobStatusCompleted, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// RecordResult stores what the analysis engine reports for a job.
func (c *Client) RecordResult(ctx context.Context, id, status string, result json.RawMessage, errMsg string) error {
	if strings.TrimSpace(status) == "" {
		return errors.New("record result: status is required")
	}
	if err := c.jobs.UpdateJobResult(ctx, id, status, result, errMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("record result: %w", err)
	}
	c.logger.Info("Analysis result recorded", "job_id", id, "status", status)
	return nil
}
