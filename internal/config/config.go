// Package config loads Shesha's engine configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the Engine's own configuration surface (spec §6.5). It does not
// model project-repository config, CLI flags, or the multi-repo pipeline --
// those are out of scope.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Pool     PoolConfig     `yaml:"pool"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Trace    TraceConfig    `yaml:"trace"`
	LLM      LLMConfig      `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig controls the iteration loop.
type EngineConfig struct {
	// MaxIterations bounds the prompt/code/execute/observe loop per query.
	MaxIterations int `yaml:"max_iterations"`

	// MaxSubcallChars bounds the length of the content a sub-call
	// (llm_query) may pass to the sub-LLM, measured before the
	// untrusted-content banner is added.
	MaxSubcallChars int `yaml:"max_subcall_chars"`

	// QueryTimeout bounds the wall-clock duration of a single query.
	QueryTimeout time.Duration `yaml:"query_timeout_seconds"`

	// MaxSubcallDepth bounds how many llm_query calls a single execute()
	// call may issue; beyond it, the Adapter stops placing further LLM
	// calls and feeds the REPL a recoverable limit-exceeded reply instead.
	MaxSubcallDepth int `yaml:"max_subcall_depth"`
}

// PoolConfig controls the warm runner pool (spec §4.4).
type PoolConfig struct {
	// Size is the number of runner processes kept warm.
	Size int `yaml:"pool_size"`

	// MaxSize is the ceiling the pool may grow to under load.
	MaxSize int `yaml:"max_pool_size"`

	// RunnerPath is the path to the shesha-runner binary the pool spawns.
	RunnerPath string `yaml:"runner_path"`

	// SpawnTimeout bounds how long launching a new runner process (fork/exec
	// through the process starting) may take before the spawn is abandoned
	// as failed; it does not bound the runner's subsequent lifetime.
	SpawnTimeout time.Duration `yaml:"spawn_timeout_seconds"`
}

// ProtocolConfig mirrors the hard wire limits from spec §4.2/§6.
type ProtocolConfig struct {
	MaxLineLength  int           `yaml:"max_line_length"`
	MaxBufferSize  int           `yaml:"max_buffer_size"`
	MaxReadTimeout time.Duration `yaml:"max_read_duration_seconds"`
}

// TraceConfig controls trace persistence and retention (spec §4.1, §6).
type TraceConfig struct {
	Directory        string `yaml:"directory"`
	MaxTracesPerProj int    `yaml:"max_traces_per_project"`
}

// LLMConfig selects and configures the LLM provider used for both the
// top-level loop and recursive sub-calls.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file at path, applying defaults
// and environment overrides.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.MaxIterations == 0 {
		cfg.Engine.MaxIterations = 30
	}
	if cfg.Engine.MaxSubcallChars == 0 {
		cfg.Engine.MaxSubcallChars = 50_000
	}
	if cfg.Engine.QueryTimeout == 0 {
		cfg.Engine.QueryTimeout = 300 * time.Second
	}
	if cfg.Engine.MaxSubcallDepth == 0 {
		cfg.Engine.MaxSubcallDepth = 3
	}

	if cfg.Pool.Size == 0 {
		cfg.Pool.Size = 2
	}
	if cfg.Pool.MaxSize == 0 {
		cfg.Pool.MaxSize = 8
	}
	if cfg.Pool.RunnerPath == "" {
		cfg.Pool.RunnerPath = "shesha-runner"
	}
	if cfg.Pool.SpawnTimeout == 0 {
		cfg.Pool.SpawnTimeout = 5 * time.Second
	}

	if cfg.Protocol.MaxLineLength == 0 {
		cfg.Protocol.MaxLineLength = 1 << 20 // 1 MiB
	}
	if cfg.Protocol.MaxBufferSize == 0 {
		cfg.Protocol.MaxBufferSize = 10 << 20 // 10 MiB
	}
	if cfg.Protocol.MaxReadTimeout == 0 {
		cfg.Protocol.MaxReadTimeout = 300 * time.Second
	}

	if cfg.Trace.Directory == "" {
		cfg.Trace.Directory = ".shesha/traces"
	}
	if cfg.Trace.MaxTracesPerProj == 0 {
		cfg.Trace.MaxTracesPerProj = 50
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("SHESHA_MAX_ITERATIONS")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Engine.MaxIterations = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("SHESHA_POOL_SIZE")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Pool.Size = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]LLMProviderConfig{}
		}
		entry := cfg.LLM.Providers["anthropic"]
		entry.APIKey = value
		cfg.LLM.Providers["anthropic"] = entry
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]LLMProviderConfig{}
		}
		entry := cfg.LLM.Providers["openai"]
		entry.APIKey = value
		cfg.LLM.Providers["openai"] = entry
	}
}

// ConfigValidationError aggregates config issues, matching the teacher's
// multi-issue reporting style.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Engine.MaxIterations <= 0 {
		issues = append(issues, "engine.max_iterations must be > 0")
	}
	if cfg.Engine.MaxSubcallChars <= 0 {
		issues = append(issues, "engine.max_subcall_chars must be > 0")
	}
	if cfg.Engine.MaxSubcallDepth <= 0 {
		issues = append(issues, "engine.max_subcall_depth must be > 0")
	}
	if cfg.Pool.Size <= 0 {
		issues = append(issues, "pool.pool_size must be > 0")
	}
	if cfg.Pool.MaxSize < cfg.Pool.Size {
		issues = append(issues, "pool.max_pool_size must be >= pool.pool_size")
	}
	if cfg.Protocol.MaxLineLength <= 0 {
		issues = append(issues, "protocol.max_line_length must be > 0")
	}
	if cfg.Protocol.MaxBufferSize < cfg.Protocol.MaxLineLength {
		issues = append(issues, "protocol.max_buffer_size must be >= protocol.max_line_length")
	}
	if cfg.Trace.MaxTracesPerProj < 0 {
		issues = append(issues, "trace.max_traces_per_project must be >= 0")
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
