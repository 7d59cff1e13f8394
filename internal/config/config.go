// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Job store kinds.
const (
	JobStoreSQLite   = "sqlite"
	JobStoreMemory   = "memory"
	JobStoreSupabase = "supabase"
)

const configFileEnv = "CONFIG_FILE"

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	JobStore        JobStoreConfig        `yaml:"jobStore"`
	Webhook         WebhookConfig         `yaml:"webhook"`
	Poll            PollConfig            `yaml:"poll"`
	Chat            ChatConfig            `yaml:"chat"`
	ConversationLog ConversationLogConfig `yaml:"conversationLog"`
	History         HistoryConfig         `yaml:"history"`
	Maintenance     MaintenanceConfig     `yaml:"maintenance"`
}

// ServerConfig holds HTTP and logging settings.
type ServerConfig struct {
	Port        string `yaml:"port"`
	FrontendURL string `yaml:"frontendUrl"`
	LogLevel    string `yaml:"logLevel"`
	// RateLimit caps report submissions and chat messages per client per
	// RateWindow. Zero disables limiting.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// JobStoreConfig selects where analysis jobs live.
type JobStoreConfig struct {
	Kind          string        `yaml:"kind"`
	SupabaseURL   string        `yaml:"supabaseUrl"`
	SupabaseKey   string        `yaml:"supabaseKey"`
	SupabaseTable string        `yaml:"supabaseTable"`
	Timeout       time.Duration `yaml:"timeout"`
}

// WebhookConfig points at the automation that runs an analysis.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollConfig controls how jobs are watched.
type PollConfig struct {
	Interval             time.Duration `yaml:"interval"`
	Deadline             time.Duration `yaml:"deadline"`
	TargetAttempts       int           `yaml:"targetAttempts"`
	MaxConsecutiveErrors int           `yaml:"maxConsecutiveErrors"`
}

// ChatConfig configures the report assistant.
type ChatConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	HistoryEndpoint string        `yaml:"historyEndpoint"`
	GRPCAddr        string        `yaml:"grpcAddr"`
	GRPCConnect     time.Duration `yaml:"grpcConnectTimeout"`
	Timeout         time.Duration `yaml:"timeout"`
	Welcome         string        `yaml:"welcome"`
	Apology         string        `yaml:"apology"`
	MaxSessions     int           `yaml:"maxSessions"`
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	GlobalEnabled bool   `yaml:"globalEnabled"`
	GlobalPath    string `yaml:"globalPath"`
	QueueSize     int    `yaml:"queueSize"`
}

// HistoryConfig sizes the normalized-result cache.
type HistoryConfig struct {
	CacheSize int `yaml:"cacheSize"`
}

// MaintenanceConfig controls the stale chat state sweeper.
type MaintenanceConfig struct {
	ChatStateTTL  time.Duration `yaml:"chatStateTtl"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", LogLevel: "info", RateLimit: 30, RateWindow: time.Minute},
		Database: DatabaseConfig{Path: "./data/reports.db"},
		JobStore: JobStoreConfig{
			Kind:          JobStoreSQLite,
			SupabaseTable: "analysis_jobs",
			Timeout:       10 * time.Second,
		},
		Webhook: WebhookConfig{Timeout: 15 * time.Second},
		Poll: PollConfig{
			Interval:             5 * time.Second,
			Deadline:             15 * time.Minute,
			TargetAttempts:       36,
			MaxConsecutiveErrors: 5,
		},
		Chat: ChatConfig{
			GRPCConnect: 5 * time.Second,
			Timeout:     60 * time.Second,
			MaxSessions: 256,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:    true,
			Dir:        "./data/logs/conversations",
			GlobalPath: "./data/logs/conversations/all.ndjson",
			QueueSize:  1000,
		},
		History: HistoryConfig{CacheSize: 64},
		Maintenance: MaintenanceConfig{
			ChatStateTTL:  30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(configFileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.FrontendURL = getEnv("FRONTEND_URL", c.Server.FrontendURL)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Server.RateLimit = getEnvInt("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateWindow = getEnvDuration("RATE_LIMIT_WINDOW", c.Server.RateWindow)

	c.Database.Path = getEnv("DB_PATH", c.Database.Path)

	c.JobStore.Kind = strings.ToLower(getEnv("JOB_STORE", c.JobStore.Kind))
	c.JobStore.SupabaseURL = getEnv("SUPABASE_URL", c.JobStore.SupabaseURL)
	c.JobStore.SupabaseKey = getEnv("SUPABASE_KEY", c.JobStore.SupabaseKey)
	c.JobStore.SupabaseTable = getEnv("SUPABASE_TABLE", c.JobStore.SupabaseTable)
	c.JobStore.Timeout = getEnvDuration("JOB_STORE_TIMEOUT", c.JobStore.Timeout)

	c.Webhook.URL = getEnv("WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Timeout = getEnvDuration("WEBHOOK_TIMEOUT", c.Webhook.Timeout)

	c.Poll.Interval = getEnvDuration("POLL_INTERVAL", c.Poll.Interval)
	c.Poll.Deadline = getEnvDuration("POLL_DEADLINE", c.Poll.Deadline)
	c.Poll.TargetAttempts = getEnvInt("POLL_TARGET_ATTEMPTS", c.Poll.TargetAttempts)
	c.Poll.MaxConsecutiveErrors = getEnvInt("POLL_MAX_CONSECUTIVE_ERRORS", c.Poll.MaxConsecutiveErrors)

	c.Chat.Endpoint = getEnv("CHAT_ENDPOINT", c.Chat.Endpoint)
	c.Chat.HistoryEndpoint = getEnv("CHAT_HISTORY_ENDPOINT", c.Chat.HistoryEndpoint)
	c.Chat.GRPCAddr = getEnv("AGENT_GRPC_ADDR", c.Chat.GRPCAddr)
	c.Chat.GRPCConnect = getEnvDuration("AGENT_GRPC_CONNECT_TIMEOUT", c.Chat.GRPCConnect)
	c.Chat.Timeout = getEnvDuration("CHAT_TIMEOUT", c.Chat.Timeout)
	c.Chat.Welcome = getEnv("CHAT_WELCOME", c.Chat.Welcome)
	c.Chat.Apology = getEnv("CHAT_APOLOGY", c.Chat.Apology)
	c.Chat.MaxSessions = getEnvInt("CHAT_MAX_SESSIONS", c.Chat.MaxSessions)

	c.ConversationLog.Enabled = getEnvBool("CONVERSATION_LOG_ENABLED", c.ConversationLog.Enabled)
	c.ConversationLog.Dir = getEnv("CONVERSATION_LOG_DIR", c.ConversationLog.Dir)
	c.ConversationLog.GlobalEnabled = getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", c.ConversationLog.GlobalEnabled)
	c.ConversationLog.GlobalPath = getEnv("CONVERSATION_LOG_GLOBAL_PATH", c.ConversationLog.GlobalPath)
	c.ConversationLog.QueueSize = getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", c.ConversationLog.QueueSize)

	c.History.CacheSize = getEnvInt("HISTORY_CACHE_SIZE", c.History.CacheSize)

	c.Maintenance.ChatStateTTL = getEnvDuration("CHAT_STATE_TTL", c.Maintenance.ChatStateTTL)
	c.Maintenance.SweepInterval = getEnvDuration("SWEEP_INTERVAL", c.Maintenance.SweepInterval)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}

	switch c.JobStore.Kind {
	case JobStoreSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH cannot be empty"))
		}
	case JobStoreMemory:
	case JobStoreSupabase:
		if c.JobStore.SupabaseURL == "" || c.JobStore.SupabaseKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_KEY are required when JOB_STORE=supabase"))
		}
		if c.JobStore.SupabaseTable == "" {
			errs = append(errs, errors.New("SUPABASE_TABLE cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("JOB_STORE must be one of sqlite, memory, supabase; got %q", c.JobStore.Kind))
	}

	for name, raw := range map[string]string{
		"WEBHOOK_URL":           c.Webhook.URL,
		"CHAT_ENDPOINT":         c.Chat.Endpoint,
		"CHAT_HISTORY_ENDPOINT": c.Chat.HistoryEndpoint,
		"SUPABASE_URL":          c.JobStore.SupabaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", name))
		}
	}

	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0 when RATE_LIMIT is set"))
	}
	if c.JobStore.Timeout <= 0 {
		errs = append(errs, errors.New("JOB_STORE_TIMEOUT must be > 0"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be > 0"))
	}
	if c.Poll.Deadline < c.Poll.Interval {
		errs = append(errs, errors.New("POLL_DEADLINE must be >= POLL_INTERVAL"))
	}
	if c.Poll.TargetAttempts <= 0 {
		errs = append(errs, errors.New("POLL_TARGET_ATTEMPTS must be > 0"))
	}
	if c.Poll.MaxConsecutiveErrors <= 0 {
		errs = append(errs, errors.New("POLL_MAX_CONSECUTIVE_ERRORS must be > 0"))
	}
	if c.Chat.MaxSessions <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_SESSIONS must be > 0"))
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		errs = append(errs, errors.New("CONVERSATION_LOG_DIR cannot be empty"))
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		errs = append(errs, errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty"))
	}
	if c.ConversationLog.QueueSize <= 0 {
		errs = append(errs, errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0"))
	}
	if c.Maintenance.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be > 0"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.FrontendURL == "" ||
		strings.Contains(c.Server.FrontendURL, "localhost") ||
		strings.Contains(c.Server.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS and WebSocket origin allow list.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.Server.FrontendURL}
}

// LogLevel maps Server.LogLevel to a slog level. Unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	return ParseLevel(c.Server.LogLevel)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
