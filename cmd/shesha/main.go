// Command shesha is a demonstration entrypoint for the RLM engine: it loads
// configuration, wires a warm runner pool and an LLM provider, binds a
// handful of files as query context, and runs one query to completion. It
// is not a general-purpose CLI -- project ingestion, multi-repo pipelines,
// and interactive sessions are out of scope.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sheshahq/shesha/internal/config"
	"github.com/sheshahq/shesha/internal/engine"
	"github.com/sheshahq/shesha/internal/llm"
	"github.com/sheshahq/shesha/internal/llm/providers"
	"github.com/sheshahq/shesha/internal/observability"
	"github.com/sheshahq/shesha/internal/pool"
	"github.com/sheshahq/shesha/internal/process"
	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/internal/trace"
	"github.com/sheshahq/shesha/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; defaults are used if empty)")
	question := flag.String("question", "", "the question to ask against the bound documents")
	project := flag.String("project", "demo", "project label attached to the persisted trace")
	runnerPath := flag.String("runner", "", "path to the shesha-runner binary (overrides config pool.runner_path)")
	flag.Parse()

	docPaths := flag.Args()
	if *question == "" || len(docPaths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: shesha -question \"...\" [-config path] [-runner path] file [file...]")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if *runnerPath != "" {
		cfg.Pool.RunnerPath = *runnerPath
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	documents, err := loadDocuments(docPaths)
	if err != nil {
		logger.Error(ctx, "loading documents", "error", err)
		os.Exit(1)
	}

	client, err := buildClient(cfg.LLM)
	if err != nil {
		logger.Error(ctx, "building LLM client", "error", err)
		os.Exit(1)
	}

	spawner := &pool.ProcessSpawner{
		Path: cfg.Pool.RunnerPath,
		Limits: sandbox.Limits{
			MaxLineLength:  cfg.Protocol.MaxLineLength,
			MaxBufferSize:  cfg.Protocol.MaxBufferSize,
			MaxReadTimeout: cfg.Protocol.MaxReadTimeout,
		},
		SpawnTimeout: cfg.Pool.SpawnTimeout,
	}
	p, err := pool.NewPool(ctx, spawner, cfg.Pool.Size, cfg.Pool.MaxSize)
	if err != nil {
		logger.Error(ctx, "starting runner pool", "error", err)
		os.Exit(1)
	}
	defer p.Shutdown()

	var writer *trace.Writer
	if cfg.Trace.Directory != "" {
		writer = trace.NewWriter(cfg.Trace.Directory, cfg.Trace.MaxTracesPerProj, trace.NewRedactor(nil))
	}

	lanes := process.NewCommandQueue()
	lanes.SetLaneConcurrency(process.LaneMain, cfg.Pool.MaxSize)
	lanes.SetLaneConcurrency(process.LaneSubcall, cfg.Pool.MaxSize*2)

	eng := &engine.Engine{
		Pool:   p,
		Client: client,
		Lanes:  lanes,
		Config: engine.Config{
			MaxIterations:      cfg.Engine.MaxIterations,
			MaxSubcallChars:    cfg.Engine.MaxSubcallChars,
			MaxSubcallDepth:    cfg.Engine.MaxSubcallDepth,
			QueryTimeout:       cfg.Engine.QueryTimeout,
			ObservationCharCap: 20_000,
			Model:              cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
			SubcallModel:       cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
		},
		TraceWriter: writer,
	}

	ctx = observability.AddProject(ctx, *project)
	result := eng.Query(ctx, documents, *question, *project)

	ctx = observability.AddRunID(ctx, result.TraceID)
	logger.Info(ctx, "query finished", "status", string(result.Status), "iterations", result.Iterations, "tokens", result.TokensUsed.Total())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error(ctx, "encoding result", "error", err)
		os.Exit(1)
	}
	if result.Status == models.StatusError {
		os.Exit(1)
	}
}

// defaultConfigYAML selects anthropic as the default provider so a bare
// ANTHROPIC_API_KEY env var is enough to run without a config file.
const defaultConfigYAML = "llm:\n  default_provider: anthropic\n  providers:\n    anthropic: {}\n    openai: {}\n"

// loadConfig loads path through config.Load, or -- when no path is given --
// writes a minimal default config to a temp file first, so the same
// defaulting/env-override/validation path in internal/config always runs.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	tmp, err := os.CreateTemp("", "shesha-default-*.yaml")
	if err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(defaultConfigYAML); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing default config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}
	return config.Load(tmp.Name())
}

func loadDocuments(paths []string) ([]models.Document, error) {
	documents := make([]models.Document, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		documents = append(documents, models.Document{
			Name:    filepath.Base(p),
			Content: string(content),
		})
	}
	return documents, nil
}

// buildClient constructs the configured default LLM provider. The adapter
// routes sub-calls through the same Client (spec §4.5); only the sub-call
// model may differ, never the provider (see DESIGN.md).
func buildClient(cfg config.LLMConfig) (llm.Client, error) {
	pc := cfg.Providers[cfg.DefaultProvider]
	switch cfg.DefaultProvider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "openai", "":
		return providers.NewOpenAIProvider(pc.APIKey, pc.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.DefaultProvider)
	}
}
