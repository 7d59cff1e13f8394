package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/maturity-report/internal/chat"
	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/report"
)

const wsWriteTimeout = 5 * time.Second

// ChatHandler exposes per-report chat sessions over HTTP and WebSocket.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat/{reportID}", func(r chi.Router) {
		r.Get("/messages", h.Messages)
		r.With(h.limit).Post("/messages", h.Send)
		r.Delete("/messages", h.Clear)
		r.Post("/cancel", h.Cancel)
	})
	r.Get("/ws/chat/{reportID}", h.Stream)
}

type chatSnapshot struct {
	ReportID  string               `json:"reportId"`
	SessionID string               `json:"sessionId"`
	Pending   bool                 `json:"pending"`
	Messages  []domain.ChatMessage `json:"messages"`
}

func snapshotOf(s *chat.Session, msgs []domain.ChatMessage) chatSnapshot {
	pending := false
	for _, m := range msgs {
		if m.IsLoading {
			pending = true
			break
		}
	}
	return chatSnapshot{
		ReportID:  s.ReportID(),
		SessionID: s.SessionID(),
		Pending:   pending,
		Messages:  msgs,
	}
}

func (h *ChatHandler) session(r *http.Request) *chat.Session {
	return h.chats.Get(r.Context(), chi.URLParam(r, "reportID"))
}

// Messages returns the current conversation for a report.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	JSON(w, http.StatusOK, snapshotOf(s, s.Messages()))
}

// Send posts a user message. The reply arrives asynchronously and is visible
// through Messages or the WebSocket stream.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	s := h.session(r)
	jobID, briefing := h.reportContext(r.Context(), s.ReportID())
	s.Send(req.Message, jobID, briefing)

	h.logger.Info("Chat message sent",
		"report_id", s.ReportID(),
		"session_id", s.SessionID(),
		"message_length", len(req.Message),
		"grounded", briefing != "",
	)
	JSON(w, http.StatusAccepted, snapshotOf(s, s.Messages()))
}

// reportContext returns the job id and briefing that ground a chat request.
// Unknown reports are sent without a briefing.
func (h *ChatHandler) reportContext(ctx context.Context, reportID string) (string, string) {
	if reportID == chat.DefaultReportKey {
		if active, ok := h.history.Active(); ok {
			return active.JobID, active.Briefing
		}
		return "", ""
	}
	if active, ok := h.history.Active(); ok && active.JobID == reportID {
		return active.JobID, active.Briefing
	}

	job, err := h.reports.GetJob(ctx, reportID)
	if err != nil {
		if !errors.Is(err, report.ErrJobNotFound) {
			h.logger.Warn("Failed to load report for chat", "error", err, "report_id", reportID)
		}
		return reportID, ""
	}
	if len(job.Result) == 0 {
		return job.ID, ""
	}
	return job.ID, h.history.View(job).Briefing
}

// Clear resets a conversation to the welcome message.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.session(r).Clear()
	w.WriteHeader(http.StatusNoContent)
}

// Cancel aborts the outstanding assistant request, if any.
func (h *ChatHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.session(r).Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// Stream pushes a snapshot of the conversation after every change.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	reportID := chat.Key(chi.URLParam(r, "reportID"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.origins),
	})
	if err != nil {
		h.logger.Warn("Failed to accept WebSocket", "error", err, "report_id", reportID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "report_id", reportID)
		}
	}()

	ctx := ws.CloseRead(r.Context())
	s := h.chats.Get(ctx, reportID)
	snapshots, unsubscribe := s.Subscribe()
	defer unsubscribe()

	h.logger.Info("Chat stream opened", "report_id", reportID, "session_id", s.SessionID())
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Chat stream closed by client", "report_id", reportID)
			return
		case msgs, ok := <-snapshots:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, ws, snapshotOf(s, msgs))
			cancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 {
					h.logger.Warn("WebSocket write error", "error", err, "report_id", reportID)
				}
				return
			}
		}
	}
}

// originPatterns turns allowed origins into host patterns for the
// WebSocket handshake.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
