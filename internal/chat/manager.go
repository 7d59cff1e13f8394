package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashureev/maturity-report/internal/metrics"
	"github.com/ashureev/maturity-report/internal/store"
)

// DefaultReportKey is the registry key used for an empty report id.
const DefaultReportKey = "default"

// DefaultMaxSessions bounds the registry when ManagerConfig leaves it zero.
const DefaultMaxSessions = 256

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	MaxSessions int
	Welcome     string
	Apology     string
	Timeout     time.Duration
}

// Manager owns one Session per report id. Least recently used sessions are
// closed when the registry is full; their persisted state is reloaded on the
// next Get.
type Manager struct {
	cfg       ManagerConfig
	kv        store.KV
	transport Transport
	history   HistorySource
	convLog   ConversationLogger
	logger    *slog.Logger

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	retired  []*Session
}

// NewManager builds a registry. history and convLog may be nil.
func NewManager(cfg ManagerConfig, kv store.KV, transport Transport, history HistorySource, convLog ConversationLogger, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	m := &Manager{
		cfg:       cfg,
		kv:        kv,
		transport: transport,
		history:   history,
		convLog:   convLog,
		logger:    logger,
	}
	cache, err := lru.NewWithEvict(cfg.MaxSessions, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session registry: %w", err)
	}
	m.sessions = cache
	return m, nil
}

func (m *Manager) onEvict(key string, s *Session) {
	s.Close()
	metrics.ChatSessions.Dec()
	m.logger.Debug("Chat session closed", "report_id", key)
	m.retired = append(m.retired, s)
}

// Key maps a report id to its registry key.
func Key(reportID string) string {
	if id := strings.TrimSpace(reportID); id != "" {
		return id
	}
	return DefaultReportKey
}

// Get returns the session for reportID, creating and restoring it on first
// use.
func (m *Manager) Get(ctx context.Context, reportID string) *Session {
	key := Key(reportID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions.Get(key); ok {
		return s
	}
	s := NewSession(ctx, Options{
		ReportID:  key,
		KV:        m.kv,
		Transport: m.transport,
		History:   m.history,
		ConvLog:   m.convLog,
		Welcome:   m.cfg.Welcome,
		Apology:   m.cfg.Apology,
		Timeout:   m.cfg.Timeout,
		Logger:    m.logger,
	})
	m.sessions.Add(key, s)
	metrics.ChatSessions.Inc()
	m.pruneRetiredLocked()
	return s
}

// Peek returns the session for reportID without creating it.
func (m *Manager) Peek(reportID string) (*Session, bool) {
	return m.sessions.Peek(Key(reportID))
}

// Release closes the session for reportID. Its persisted state is kept.
func (m *Manager) Release(reportID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Remove(Key(reportID))
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

func (m *Manager) pruneRetiredLocked() {
	kept := m.retired[:0]
	for _, s := range m.retired {
		if s.busy() {
			kept = append(kept, s)
		}
	}
	m.retired = kept
}

// Close closes every session and waits for their requests to return.
func (m *Manager) Close() {
	m.mu.Lock()
	m.sessions.Purge()
	retired := m.retired
	m.retired = nil
	m.mu.Unlock()

	for _, s := range retired {
		s.Wait()
	}
}
