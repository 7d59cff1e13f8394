// Package domain contains core domain types for the report pipeline.
package domain

import (
	"encoding/json"
	"time"
)

// Job status values written by the analysis engine. The raw status string on
// a Job is kept verbatim; these are the canonical spellings only.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// CompanyProfile is the operator-submitted input for an analysis.
type CompanyProfile struct {
	CompanyName string `json:"company_name" yaml:"company_name"`
	Website     string `json:"website" yaml:"website"`
	Sector      string `json:"sector,omitempty" yaml:"sector"`
	Email       string `json:"email,omitempty" yaml:"email"`
	Notes       string `json:"notes,omitempty" yaml:"notes"`
}

// Job is an externally computed analysis tracked by id and status.
type Job struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Company      CompanyProfile  `json:"company"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Summary returns the listing view of the job.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		CompanyName: j.Company.CompanyName,
		Website:     j.Company.Website,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// JobSummary is a lightweight row for history listings.
type JobSummary struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"company_name"`
	Website     string    `json:"website"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobFilter narrows job listings.
type JobFilter struct {
	Status string
	Limit  int
}
