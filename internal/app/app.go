// Package app wires configuration to the report pipeline components and runs
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/maturity-report/internal/api"
	"github.com/ashureev/maturity-report/internal/chat"
	"github.com/ashureev/maturity-report/internal/config"
	"github.com/ashureev/maturity-report/internal/history"
	"github.com/ashureev/maturity-report/internal/metrics"
	"github.com/ashureev/maturity-report/internal/middleware"
	"github.com/ashureev/maturity-report/internal/poller"
	"github.com/ashureev/maturity-report/internal/report"
	"github.com/ashureev/maturity-report/internal/store"
)

const (
	chatStatePrefix = "chat:"
	shutdownTimeout = 10 * time.Second
)

// Application owns every long-lived component of the server.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger

	stores  *Stores
	reports *report.Client
	poller  *poller.Poller
	history *history.Store
	chats   *chat.Manager
	closers []func() error
	once    sync.Once
}

// New opens the stores and builds the pipeline. Chat is disabled when no
// assistant transport is configured or reachable.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stores, err := OpenStores(cfg)
	if err != nil {
		return nil, err
	}
	a := &Application{cfg: cfg, logger: logger, stores: stores}

	var trigger report.Trigger
	if cfg.Webhook.URL != "" {
		trigger = report.NewWebhookTrigger(cfg.Webhook.URL, cfg.Webhook.Timeout)
	} else {
		logger.Warn("WEBHOOK_URL not set, submitted jobs stay pending until a result is posted")
	}
	a.reports = report.NewClient(stores.Jobs, trigger, logger.With("component", "report"))
	a.poller = NewPoller(cfg, stores.Jobs, logger)

	a.history, err = history.New(stores.Jobs, cfg.History.CacheSize, logger.With("component", "history"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create history store: %w", err)
	}

	if err := a.initChat(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewPoller builds a poller from the poll section of cfg.
func NewPoller(cfg *config.Config, jobs poller.JobFetcher, logger *slog.Logger) *poller.Poller {
	return poller.New(jobs, poller.Config{
		Interval:             cfg.Poll.Interval,
		Deadline:             cfg.Poll.Deadline,
		TargetAttempts:       cfg.Poll.TargetAttempts,
		MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
	}, logger.With("component", "poller"))
}

func (a *Application) initChat() error {
	transport := a.chatTransport()
	if transport == nil {
		a.logger.Info("Chat disabled (CHAT_ENDPOINT and AGENT_GRPC_ADDR not set or unreachable)")
		return nil
	}

	convLog, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       a.cfg.ConversationLog.Enabled,
		Dir:           a.cfg.ConversationLog.Dir,
		GlobalEnabled: a.cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    a.cfg.ConversationLog.GlobalPath,
		QueueSize:     a.cfg.ConversationLog.QueueSize,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create conversation logger: %w", err)
	}
	a.closers = append(a.closers, convLog.Close)

	var hist chat.HistorySource
	if a.cfg.Chat.HistoryEndpoint != "" {
		hist = chat.NewHTTPHistory(a.cfg.Chat.HistoryEndpoint, &http.Client{Timeout: a.cfg.Chat.Timeout})
	}

	a.chats, err = chat.NewManager(chat.ManagerConfig{
		MaxSessions: a.cfg.Chat.MaxSessions,
		Welcome:     a.cfg.Chat.Welcome,
		Apology:     a.cfg.Chat.Apology,
		Timeout:     a.cfg.Chat.Timeout,
	}, a.stores.KV, transport, hist, convLog, a.logger.With("component", "chat"))
	if err != nil {
		return fmt.Errorf("create chat manager: %w", err)
	}
	return nil
}

// chatTransport prefers gRPC and falls back to HTTP when the gRPC assistant
// cannot be reached.
func (a *Application) chatTransport() chat.Transport {
	if addr := a.cfg.Chat.GRPCAddr; addr != "" {
		a.logger.Info("Connecting to assistant via gRPC", "address", addr)
		t, err := chat.NewGRPCTransport(chat.GRPCConfig{Address: addr, ConnectTimeout: a.cfg.Chat.GRPCConnect}, a.logger)
		if err == nil {
			a.closers = append(a.closers, func() error { t.Close(); return nil })
			return t
		}
		a.logger.Warn("Failed to connect to assistant over gRPC", "address", addr, "error", err)
	}
	if a.cfg.Chat.Endpoint != "" {
		// Deadlines come from the per-request context.
		return chat.NewHTTPTransport(a.cfg.Chat.Endpoint, &http.Client{})
	}
	return nil
}

// ChatEnabled reports whether chat routes are served.
func (a *Application) ChatEnabled() bool { return a.chats != nil }

// Router builds the HTTP handler with all routes and middleware.
func (a *Application) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(a.cfg.AllowedOrigins()))

	api.NewHealthHandler(map[string]api.Pinger{"database": a.stores.Jobs}, 0).RegisterHealth(r)

	var limit func(http.Handler) http.Handler
	if a.cfg.Server.RateLimit > 0 {
		limit = middleware.NewRateLimiter(a.cfg.Server.RateLimit, a.cfg.Server.RateWindow).Handler
	}

	base := api.NewHandler(api.Deps{
		Reports:        a.reports,
		History:        a.history,
		Poller:         a.poller,
		Chats:          a.chats,
		AllowedOrigins: a.cfg.AllowedOrigins(),
		Limit:          limit,
		Logger:         a.logger.With("component", "api"),
	})
	api.NewReportHandler(base).RegisterRoutes(r)
	if a.chats != nil {
		api.NewChatHandler(base).RegisterRoutes(r)
	}

	r.Handle("/metrics", metrics.Handler())
	return r
}

// Run serves HTTP and runs the chat state sweeper until ctx is cancelled,
// then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	// SSE and WebSocket streams need WriteTimeout 0.
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      a.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Server listening", "addr", srv.Addr, "chat_enabled", a.ChatEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	if a.stores.Sweeper != nil && a.cfg.Maintenance.ChatStateTTL > 0 {
		g.Go(func() error {
			<-store.StartSweeper(gctx, a.stores.Sweeper, chatStatePrefix, a.cfg.Maintenance.SweepInterval, a.cfg.Maintenance.ChatStateTTL)
			return nil
		})
	}

	return g.Wait()
}

// Close releases chat sessions, transports and stores. It is safe to call
// more than once.
func (a *Application) Close() {
	a.once.Do(func() {
		if a.chats != nil {
			a.chats.Close()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.logger.Warn("Failed to close component", "error", err)
			}
		}
		if err := a.stores.Close(); err != nil {
			a.logger.Error("Failed to close stores", "error", err)
		}
	})
}
