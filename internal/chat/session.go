package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/metrics"
	"github.com/ashureev/maturity-report/internal/store"
)

// Default texts used when Options leaves them empty.
const (
	DefaultWelcome = "Hello! I have read this report. Ask me anything about the scores, findings or roadmap."
	DefaultApology = "Sorry, I could not answer that right now. Please try again in a moment."

	welcomeID      = "welcome"
	persistTimeout = 5 * time.Second
)

// MessagesKey is the kv key holding a report's persisted message list.
func MessagesKey(reportID string) string { return "chat:" + reportID + ":messages" }

// SessionKey is the kv key holding a report's chat session id.
func SessionKey(reportID string) string { return "chat:" + reportID + ":session" }

// Options configures a Session.
type Options struct {
	ReportID  string
	KV        store.KV
	Transport Transport
	History   HistorySource
	ConvLog   ConversationLogger
	Welcome   string
	Apology   string
	// Timeout bounds a single assistant request. Zero means no limit.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Session is the conversation for one report. All methods are safe for
// concurrent use.
type Session struct {
	reportID  string
	sessionID string
	kv        store.KV
	transport Transport
	convLog   ConversationLogger
	welcome   string
	apology   string
	timeout   time.Duration
	logger    *slog.Logger

	base       context.Context
	baseCancel context.CancelFunc
	inflight   sync.WaitGroup
	running    atomic.Int64

	mu       sync.Mutex
	messages []domain.ChatMessage
	gen      uint64
	cancel   context.CancelFunc
	subs     map[int]chan []domain.ChatMessage
	nextSub  int
	closed   bool
}

// NewSession restores the conversation for opts.ReportID. Local state wins;
// otherwise the remote transcript seeds local state; otherwise the session
// starts with only the welcome message. Restore failures are logged and
// never returned.
func NewSession(ctx context.Context, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConvLog == nil {
		opts.ConvLog = noopConversationLogger{}
	}
	if opts.Welcome == "" {
		opts.Welcome = DefaultWelcome
	}
	if opts.Apology == "" {
		opts.Apology = DefaultApology
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Session{
		reportID:   opts.ReportID,
		kv:         opts.KV,
		transport:  opts.Transport,
		convLog:    opts.ConvLog,
		welcome:    opts.Welcome,
		apology:    opts.Apology,
		timeout:    opts.Timeout,
		logger:     opts.Logger.With("report_id", opts.ReportID),
		base:       base,
		baseCancel: cancel,
		subs:       make(map[int]chan []domain.ChatMessage),
	}
	s.sessionID = s.loadSessionID(ctx)
	s.messages = s.restore(ctx, opts.History, welcomeMessage(opts.Welcome))
	return s
}

func welcomeMessage(text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        welcomeID,
		Role:      domain.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Session) loadSessionID(ctx context.Context) string {
	if s.kv != nil {
		id, ok, err := s.kv.Get(ctx, SessionKey(s.reportID))
		if err != nil {
			s.persistFailed("load session id", err)
		} else if ok && id != "" {
			return id
		}
	}
	id := uuid.NewString()
	if s.kv != nil {
		if err := s.kv.Set(ctx, SessionKey(s.reportID), id); err != nil {
			s.persistFailed("save session id", err)
		}
	}
	return id
}

func (s *Session) restore(ctx context.Context, history HistorySource, welcome domain.ChatMessage) []domain.ChatMessage {
	if s.kv != nil {
		raw, ok, err := s.kv.Get(ctx, MessagesKey(s.reportID))
		switch {
		case err != nil:
			s.persistFailed("load messages", err)
		case ok:
			var stored []domain.ChatMessage
			if err := json.Unmarshal([]byte(raw), &stored); err != nil {
				s.logger.Warn("Discarding unreadable chat history", "error", err)
			} else if len(stored) > 0 {
				return withoutLoading(stored)
			}
		}
	}

	if history != nil {
		remote, err := history.History(ctx, s.sessionID)
		if err != nil {
			s.logger.Warn("Failed to fetch remote chat history", "session_id", s.sessionID, "error", err)
		} else if len(remote) > 0 {
			msgs := []domain.ChatMessage{welcome}
			for _, m := range remote {
				msgs = append(msgs, domain.ChatMessage{
					ID:        uuid.NewString(),
					Role:      m.Role,
					Content:   m.Content,
					Timestamp: time.Now().UTC(),
				})
			}
			s.logger.Info("Restored chat history from remote", "messages", len(remote))
			s.persistList(msgs)
			return msgs
		}
	}

	return []domain.ChatMessage{welcome}
}

func withoutLoading(msgs []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsLoading {
			out = append(out, m)
		}
	}
	return out
}

// ReportID returns the report this session belongs to.
func (s *Session) ReportID() string { return s.reportID }

// SessionID returns the stable chat session id.
func (s *Session) SessionID() string { return s.sessionID }

// Messages returns a copy of the current message list.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Pending reports whether an assistant request is outstanding.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Session) snapshotLocked() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Subscribe returns a channel receiving the message list after every change,
// starting with the current list. Slow readers only see the latest list.
// The channel is closed by the returned cancel func or by Close.
func (s *Session) Subscribe() (<-chan []domain.ChatMessage, func()) {
	ch := make(chan []domain.ChatMessage, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Send appends the user's message and a loading placeholder, then asks the
// assistant in the background. An outstanding request is cancelled first and
// its placeholder removed.
func (s *Session) Send(text, jobID, briefing string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.abortLocked()

	s.gen++
	gen := s.gen
	now := time.Now().UTC()
	user := domain.ChatMessage{ID: uuid.NewString(), Role: domain.RoleUser, Content: text, Timestamp: now}
	placeholder := domain.ChatMessage{ID: uuid.NewString(), Role: domain.RoleAssistant, Timestamp: now, IsLoading: true}
	s.messages = append(s.messages, user, placeholder)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.base, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(s.base)
	}
	s.cancel = cancel

	s.persistLocked()
	s.publishLocked()
	s.inflight.Add(1)
	s.running.Add(1)
	s.mu.Unlock()

	s.convLog.Log(ConversationLogEvent{
		ReportID: s.reportID, SessionID: s.sessionID, Channel: "chat",
		Direction: "inbound", EventType: "chat_user_message", ContentRaw: text,
	})

	req := Request{JobID: jobID, SessionID: s.sessionID, Message: text, ReportContext: briefing}
	go s.await(ctx, cancel, gen, placeholder.ID, req)
}

func (s *Session) await(ctx context.Context, cancel context.CancelFunc, gen uint64, placeholderID string, req Request) {
	defer s.inflight.Done()
	defer s.running.Add(-1)
	defer cancel()

	reply, err := s.transport.Ask(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		metrics.ChatRequests.WithLabelValues("stale").Inc()
		s.logger.Debug("Discarding superseded assistant reply", "generation", gen)
		return
	}
	s.cancel = nil

	idx := s.indexLocked(placeholderID)
	if idx < 0 {
		return
	}

	content := reply
	event := ConversationLogEvent{
		ReportID: s.reportID, SessionID: s.sessionID, Channel: "chat",
		Direction: "outbound", EventType: "chat_assistant_reply",
	}
	if err != nil {
		// A cancelled request never leaves a visible message.
		if errors.Is(err, context.Canceled) {
			s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
			s.publishLocked()
			metrics.ChatRequests.WithLabelValues("cancelled").Inc()
			return
		}
		s.logger.Error("Assistant request failed", "session_id", s.sessionID, "error", err)
		metrics.ChatRequests.WithLabelValues("error").Inc()
		content = s.apology
		event.EventType = "chat_assistant_error"
		event.Error = err.Error()
	} else {
		metrics.ChatRequests.WithLabelValues("ok").Inc()
	}

	s.messages[idx] = domain.ChatMessage{
		ID:        placeholderID,
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	s.persistLocked()
	s.publishLocked()

	event.ContentRaw = content
	s.convLog.Log(event)
}

func (s *Session) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// abortLocked cancels the outstanding request, if any, and drops its
// placeholder. Bumping the generation makes any late reply stale.
func (s *Session) abortLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.gen++
	s.messages = withoutLoading(s.messages)
	metrics.ChatRequests.WithLabelValues("cancelled").Inc()
	return true
}

// Cancel abandons the outstanding request silently.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortLocked() {
		s.publishLocked()
	}
}

// Clear resets the conversation to the welcome message and removes the
// locally persisted list. The remote transcript is left alone.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.abortLocked()

	s.messages = []domain.ChatMessage{welcomeMessage(s.welcome)}

	if s.kv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.kv.Delete(ctx, MessagesKey(s.reportID)); err != nil {
			s.persistFailed("delete messages", err)
		}
		s.touchSessionID(ctx)
	}
	s.publishLocked()
}

// Close cancels any outstanding request and releases subscribers. Persisted
// state is kept so a new Session for the same report resumes it.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.abortLocked()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.baseCancel()
}

func (s *Session) busy() bool {
	return s.running.Load() > 0
}

// Wait blocks until every background request has returned.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) persistLocked() {
	s.persistList(s.messages)
}

func (s *Session) persistList(msgs []domain.ChatMessage) {
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(withoutLoading(msgs))
	if err != nil {
		s.persistFailed("encode messages", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, MessagesKey(s.reportID), string(data)); err != nil {
		s.persistFailed("save messages", err)
	}
	s.touchSessionID(ctx)
}

// touchSessionID rewrites the session id so it ages with the message list
// and the KV sweeper never removes one without the other.
func (s *Session) touchSessionID(ctx context.Context) {
	if s.sessionID == "" {
		return
	}
	if err := s.kv.Set(ctx, SessionKey(s.reportID), s.sessionID); err != nil {
		s.persistFailed("save session id", err)
	}
}

func (s *Session) persistFailed(op string, err error) {
	metrics.PersistenceErrors.WithLabelValues(op).Inc()
	s.logger.Warn("Chat persistence failed", "op", op, "error", err)
}
