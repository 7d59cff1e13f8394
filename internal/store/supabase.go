package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/maturity-report/internal/domain"
)

// SupabaseStore is a JobStore backed by a Supabase (PostgREST) table.
type SupabaseStore struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSupabase returns a store for table at the project baseURL.
func NewSupabase(baseURL, apiKey, table string, timeout time.Duration) *SupabaseStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SupabaseStore{
		endpoint: strings.TrimRight(baseURL, "/") + "/rest/v1/" + url.PathEscape(table),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type supabaseRow struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CompanyName  string          `json:"company_name"`
	Website      string          `json:"website"`
	Sector       *string         `json:"sector,omitempty"`
	Email        *string         `json:"email,omitempty"`
	Notes        *string         `json:"notes,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r supabaseRow) job() *domain.Job {
	j := &domain.Job{
		ID:           r.ID,
		Status:       r.Status,
		ErrorMessage: deref(r.ErrorMessage),
		Company: domain.CompanyProfile{
			CompanyName: r.CompanyName,
			Website:     r.Website,
			Sector:      deref(r.Sector),
			Email:       deref(r.Email),
			Notes:       deref(r.Notes),
		},
		CreatedAt: parseTimestamp(r.CreatedAt),
		UpdatedAt: parseTimestamp(r.UpdatedAt),
	}
	if len(r.Result) > 0 && string(r.Result) != "null" {
		j.Result = r.Result
	}
	return j
}

func (s *SupabaseStore) do(ctx context.Context, method, query string, body any, prefer string, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	target := s.endpoint
	if query != "" {
		target += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, s.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, s.endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateJob inserts a row.
func (s *SupabaseStore) CreateJob(ctx context.Context, job *domain.Job) error {
	row := supabaseRow{
		ID:           job.ID,
		Status:       job.Status,
		Result:       job.Result,
		ErrorMessage: ptr(job.ErrorMessage),
		CompanyName:  job.Company.CompanyName,
		Website:      job.Company.Website,
		Sector:       ptr(job.Company.Sector),
		Email:        ptr(job.Company.Email),
		Notes:        ptr(job.Company.Notes),
	}
	if !job.CreatedAt.IsZero() {
		row.CreatedAt = job.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !job.UpdatedAt.IsZero() {
		row.UpdatedAt = job.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if err := s.do(ctx, http.MethodPost, "", row, "return=minimal", nil); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a row by id. A missing row returns nil, nil.
func (s *SupabaseStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	q.Set("limit", "1")

	var rows []supabaseRow
	if err := s.do(ctx, http.MethodGet, q.Encode(), nil, "", &rows); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].job(), nil
}

// ListJobs returns rows newest first.
func (s *SupabaseStore) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	if filter.Status != "" {
		q.Set("status", "eq."+filter.Status)
	}

	var rows []supabaseRow
	if err := s.do(ctx, http.MethodGet, q.Encode(), nil, "", &rows); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]*domain.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.job())
	}
	return jobs, nil
}

// UpdateJobResult patches the row written back by the engine.
func (s *SupabaseStore) UpdateJobResult(ctx context.Context, id, status string, result json.RawMessage, errMsg string) error {
	patch := map[string]any{
		"status":        status,
		"error_message": ptr(errMsg),
		"updated_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(result) > 0 {
		patch["result"] = result
	}

	q := url.Values{}
	q.Set("id", "eq."+id)
	var rows []supabaseRow
	if err := s.do(ctx, http.MethodPatch, q.Encode(), patch, "return=representation", &rows); err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("update job %s: %w", id, ErrNotFound)
	}
	return nil
}

// Ping issues a one-row select.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var rows []json.RawMessage
	return s.do(ctx, http.MethodGet, "select=id&limit=1", nil, "", &rows)
}

// Close drops idle connections.
func (s *SupabaseStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
