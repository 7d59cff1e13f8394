package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/maturity-report/internal/domain"
)

func TestSupabaseGetJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/analysis_jobs" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "secret" || r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if r.URL.Query().Get("id") == "eq.missing" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{
			"id": "job-1",
			"status": "completed",
			"result": {"scores": {"overall": 80}},
			"error_message": null,
			"company_name": "Acme",
			"website": "https://acme.example",
			"sector": "Retail",
			"created_at": "2025-03-01T10:00:00.123456+00:00",
			"updated_at": "2025-03-01T10:05:00"
		}]`)
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL+"/", "secret", "analysis_jobs", time.Second)
	job, err := s.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "completed" || job.Company.Sector != "Retail" || job.ErrorMessage != "" {
		t.Errorf("unexpected job: %+v", job)
	}
	if string(job.Result) != `{"scores": {"overall": 80}}` {
		t.Errorf("Result = %s", job.Result)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Errorf("timestamps not parsed: %v %v", job.CreatedAt, job.UpdatedAt)
	}

	missing, err := s.GetJob(context.Background(), "missing")
	if err != nil || missing != nil {
		t.Errorf("GetJob(missing) = %v, %v", missing, err)
	}
}

func TestSupabaseCreateAndList(t *testing.T) {
	var inserted map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if r.Header.Get("Prefer") != "return=minimal" {
				t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
			}
			if err := json.NewDecoder(r.Body).Decode(&inserted); err != nil {
				t.Errorf("decode insert: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			q := r.URL.Query()
			if q.Get("order") != "created_at.desc" || q.Get("status") != "eq.completed" || q.Get("limit") != "5" {
				t.Errorf("unexpected query: %v", q)
			}
			_, _ = io.WriteString(w, `[{"id":"b","status":"completed"},{"id":"a","status":"completed","result":null}]`)
		}
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "secret", "analysis_jobs", time.Second)
	job := newJob("job-9", domain.JobStatusPending, time.Now())
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if inserted["id"] != "job-9" || inserted["company_name"] != "Acme job-9" {
		t.Errorf("inserted = %v", inserted)
	}
	if _, ok := inserted["notes"]; ok {
		t.Error("empty notes should be omitted")
	}

	jobs, err := s.ListJobs(context.Background(), domain.JobFilter{Status: "completed", Limit: 5})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "b" || jobs[1].Result != nil {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestSupabaseUpdateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "secret", "analysis_jobs", time.Second)
	err := s.UpdateJobResult(context.Background(), "x", "completed", json.RawMessage(`{}`), "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSupabaseErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "secret", "analysis_jobs", time.Second)
	if _, err := s.GetJob(context.Background(), "x"); err == nil {
		t.Fatal("expected error for 401")
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error for 401")
	}
}
