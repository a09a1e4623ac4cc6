// Package config provides the configuration schema and loader for the
// vocabulary tutor server, plus the registry that maps provider names to
// factories.
package config

import (
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultStopTimeout     = 20 * time.Second
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreBackend selects where pending review updates are buffered.
type StoreBackend string

const (
	// StoreSQLite keeps pending updates in a local SQLite file. Default.
	StoreSQLite StoreBackend = "sqlite"

	// StorePostgres shares pending updates between replicas through PostgreSQL.
	StorePostgres StoreBackend = "postgres"

	// StoreRedis shares pending updates through Redis.
	StoreRedis StoreBackend = "redis"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreSQLite, StorePostgres, StoreRedis:
		return true
	}
	return false
}

// MemoryBackend selects the learner memory implementation.
type MemoryBackend string

const (
	// MemoryNone disables learner memory. Sessions use the default profile.
	MemoryNone MemoryBackend = ""

	// MemoryHTTP talks to an external memory service.
	MemoryHTTP MemoryBackend = "http"

	// MemoryPostgres stores buckets and pgvector embeddings directly.
	MemoryPostgres MemoryBackend = "postgres"
)

// IsValid reports whether b is a recognised memory backend.
func (b MemoryBackend) IsValid() bool {
	switch b {
	case MemoryNone, MemoryHTTP, MemoryPostgres:
		return true
	}
	return false
}

// Judge backend names accepted in [ServicesConfig.JudgeOrder].
const (
	JudgeLLM  = "llm"
	JudgeHTTP = "http"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Services  ServicesConfig  `yaml:"services"`
	Store     StoreConfig     `yaml:"store"`
	Memory    MemoryConfig    `yaml:"memory"`
	Session   SessionConfig   `yaml:"session"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, additionally writes logs to a rotating file.
	LogFile string `yaml:"log_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// ShutdownTimeout bounds graceful shutdown, including the final sync of
	// every open session. Default: 30s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the model providers. Each entry selects a named
// provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM drives the LLM judge and word definitions.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallback is tried in order when LLM fails.
	LLMFallback []ProviderEntry `yaml:"llm_fallback"`

	// S2S is the realtime voice model. Empty disables voice.
	S2S ProviderEntry `yaml:"s2s"`

	// Embeddings backs the PostgreSQL semantic memory.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ServicesConfig lists the HTTP services the tutor depends on.
type ServicesConfig struct {
	// Scheduler computes the next FSRS card state. Required.
	Scheduler Endpoint `yaml:"scheduler"`

	// Judge rates finished scenes over HTTP.
	Judge Endpoint `yaml:"judge"`

	// JudgeOrder lists judge backends by preference: "llm", "http".
	// Default: llm first when providers.llm is set, then http.
	JudgeOrder []string `yaml:"judge_order"`

	// Planner builds the role-play plan. Empty means word-by-word review.
	Planner Endpoint `yaml:"planner"`

	// Persistence is the vocabulary GraphQL endpoint. Required.
	Persistence Endpoint `yaml:"persistence"`

	// Breaker tunes the circuit breakers around scheduler and judge calls.
	Breaker BreakerConfig `yaml:"breaker"`
}

// Endpoint is one remote HTTP service.
type Endpoint struct {
	URL string `yaml:"url"`

	// Timeout bounds a single request. Zero keeps the client default.
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig tunes a circuit breaker. Zero values keep the defaults.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
	Probes    int           `yaml:"probes"`
}

// StoreConfig selects the pending update store.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// SQLitePath is the database file for [StoreSQLite].
	// Default: "vocabtutor.db".
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for [StorePostgres].
	PostgresDSN string `yaml:"postgres_dsn"`

	// Redis settings for [StoreRedis].
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// MemoryConfig selects the learner memory backend.
type MemoryConfig struct {
	Backend MemoryBackend `yaml:"backend"`

	// URL is the memory service for [MemoryHTTP].
	URL string `yaml:"url"`

	// CacheTTL is how long [MemoryHTTP] caches bootstrapped profiles.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// PostgresDSN is the connection string for [MemoryPostgres].
	PostgresDSN string `yaml:"postgres_dsn"`
}

// SessionConfig sets the defaults of every review session.
type SessionConfig struct {
	// DefaultUser is used when a request names no user.
	DefaultUser string `yaml:"default_user"`

	// MaxWords caps the due words loaded per session. Default: 20.
	MaxWords int `yaml:"max_words"`

	// EvidenceTurns caps the history attached to word ratings.
	EvidenceTurns int `yaml:"evidence_turns"`

	// HintCount is the number of semantic memory hits given to the planner.
	HintCount int `yaml:"hint_count"`

	// RecapTurns is how much dialogue is replayed after a realtime reconnect.
	RecapTurns int `yaml:"recap_turns"`

	// Voice and TranscriptionModel configure the realtime session.
	Voice              string `yaml:"voice"`
	TranscriptionModel string `yaml:"transcription_model"`

	// StopTimeout bounds the wait for an in-flight scene rating on stop.
	// Default: 20s.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// MCPConfig holds the list of external MCP servers whose tools are offered
// to the tutor next to the built-in ones.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio".
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http".
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// ToServerConfig converts c for the MCP host.
func (c MCPServerConfig) ToServerConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		Name:      c.Name,
		Transport: c.Transport,
		Command:   c.Command,
		URL:       c.URL,
		Env:       c.Env,
	}
}
