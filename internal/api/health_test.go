package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		want   int
		status string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"database down", errors.New("disk I/O error"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(map[string]Pinger{
				"database": pingFunc(func(context.Context) error { return tt.ping }),
			}, 0)
			r := chi.NewRouter()
			h.RegisterHealth(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			got := decode[struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}](t, w)
			if got.Status != tt.status || got.Checks["api"] != "ok" {
				t.Errorf("unexpected body: %+v", got)
			}
		})
	}
}
