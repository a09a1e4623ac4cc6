package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/mcp"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"s2s":        {"openai-realtime"},
	"embeddings": {"openai"},
}

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands environment references, decodes a YAML config from
// r, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces ${NAME} with the environment variable NAME, or with the
// text after ":-" when NAME is unset or empty.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v := os.Getenv(string(sub[1])); v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreSQLite
	}
	if cfg.Store.Backend == StoreSQLite && cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "vocabtutor.db"
	}
	if cfg.Session.StopTimeout <= 0 {
		cfg.Session.StopTimeout = DefaultStopTimeout
	}
	if len(cfg.Services.JudgeOrder) == 0 {
		if cfg.Providers.LLM.Name != "" {
			cfg.Services.JudgeOrder = append(cfg.Services.JudgeOrder, JudgeLLM)
		}
		if cfg.Services.Judge.URL != "" {
			cfg.Services.JudgeOrder = append(cfg.Services.JudgeOrder, JudgeHTTP)
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for _, e := range cfg.Providers.LLMFallback {
		validateProviderName("llm", e.Name)
	}
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.S2S.Name == "" {
		slog.Warn("providers.s2s is not configured; sessions run without voice and need an external runtime")
	}

	// Services
	if cfg.Services.Scheduler.URL == "" {
		errs = append(errs, errors.New("services.scheduler.url is required"))
	}
	if cfg.Services.Persistence.URL == "" {
		errs = append(errs, errors.New("services.persistence.url is required"))
	}
	if cfg.Services.Planner.URL == "" {
		slog.Warn("services.planner.url is empty; sessions fall back to word-by-word review")
	}
	for i, name := range cfg.Services.JudgeOrder {
		switch name {
		case JudgeLLM:
			if cfg.Providers.LLM.Name == "" {
				errs = append(errs, fmt.Errorf("services.judge_order[%d]: %q requires providers.llm", i, name))
			}
		case JudgeHTTP:
			if cfg.Services.Judge.URL == "" {
				errs = append(errs, fmt.Errorf("services.judge_order[%d]: %q requires services.judge.url", i, name))
			}
		default:
			errs = append(errs, fmt.Errorf("services.judge_order[%d] %q is invalid; valid values: llm, http", i, name))
		}
	}
	if len(cfg.Services.JudgeOrder) == 0 {
		errs = append(errs, errors.New("no scene judge configured; set providers.llm or services.judge.url"))
	}

	// Store
	switch cfg.Store.Backend {
	case StoreSQLite:
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when store.backend is postgres"))
		}
	case StoreRedis:
		if cfg.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required when store.backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: sqlite, postgres, redis", cfg.Store.Backend))
	}

	// Memory
	switch cfg.Memory.Backend {
	case MemoryNone:
		slog.Warn("memory.backend is empty; learner memory is disabled")
	case MemoryHTTP:
	case MemoryPostgres:
		if cfg.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory.postgres_dsn is required when memory.backend is postgres"))
		}
		if cfg.Providers.Embeddings.Name == "" {
			errs = append(errs, errors.New("memory.backend postgres requires providers.embeddings"))
		}
	default:
		errs = append(errs, fmt.Errorf("memory.backend %q is invalid; valid values: http, postgres", cfg.Memory.Backend))
	}

	// Session
	if cfg.Session.MaxWords < 0 {
		errs = append(errs, fmt.Errorf("session.max_words %d must not be negative", cfg.Session.MaxWords))
	}
	if n := cfg.Session.EvidenceTurns; n < 0 || n > 200 {
		errs = append(errs, fmt.Errorf("session.evidence_turns %d is out of range [0, 200]", n))
	}

	// MCP servers
	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
