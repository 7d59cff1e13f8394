// Package api provides HTTP handlers for the report pipeline API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/maturity-report/internal/chat"
	"github.com/ashureev/maturity-report/internal/history"
	"github.com/ashureev/maturity-report/internal/poller"
	"github.com/ashureev/maturity-report/internal/report"
)

const maxBodyBytes = 4 << 20

// Handler holds the dependencies shared by the route groups.
type Handler struct {
	reports *report.Client
	history *history.Store
	poller  *poller.Poller
	chats   *chat.Manager
	origins []string
	limit   func(http.Handler) http.Handler
	logger  *slog.Logger
}

// Deps bundles what NewHandler needs.
type Deps struct {
	Reports *report.Client
	History *history.Store
	Poller  *poller.Poller
	Chats   *chat.Manager
	// AllowedOrigins feeds the WebSocket origin check. "*" allows any.
	AllowedOrigins []string
	// Limit wraps routes that start external work. Nil means unlimited.
	Limit  func(http.Handler) http.Handler
	Logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := d.Limit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		reports: d.Reports,
		history: d.History,
		poller:  d.Poller,
		chats:   d.Chats,
		origins: d.AllowedOrigins,
		limit:   limit,
		logger:  logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
