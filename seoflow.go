// Package seoflow assembles a content-campaign workforce from configuration:
// providers, memory backends, tools, agents and the router that ties them
// together.
package seoflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/seoflow-ai/seoflow/agent"
	"github.com/seoflow-ai/seoflow/internal/llm"
	"github.com/seoflow-ai/seoflow/internal/logging"
	"github.com/seoflow-ai/seoflow/pkg/config"
	"github.com/seoflow-ai/seoflow/pkg/embeddings"
	"github.com/seoflow-ai/seoflow/pkg/memory"
	"github.com/seoflow-ai/seoflow/pkg/observability"
	"github.com/seoflow-ai/seoflow/pkg/tool"
	"github.com/seoflow-ai/seoflow/pkg/vectorstore"
	"github.com/seoflow-ai/seoflow/pkg/vectorstore/memstore"
	"github.com/seoflow-ai/seoflow/pkg/vectorstore/redisstore"
	"github.com/seoflow-ai/seoflow/workforce"
)

// System is a fully wired workforce plus its shared infrastructure.
type System struct {
	Workforce *workforce.Workforce
	Logger    *slog.Logger

	cfg        *config.Config
	store      vectorstore.Store
	metricsSrv *http.Server
}

// NewSystem builds a workforce from configuration. Nothing runs until Start.
func NewSystem(ctx context.Context, cfg *config.Config) (*System, error) {
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.Logging.Level))

	observability.InitMetrics()
	if cfg.Tracing.Enabled {
		if err := observability.InitTracing(observability.TracingConfig{
			Enabled:     true,
			PrettyPrint: cfg.Tracing.PrettyPrint,
		}); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	embedder, store, err := buildLongTerm(ctx, cfg)
	if err != nil {
		return nil, err
	}

	roster := cfg.Agents
	if len(roster) == 0 {
		roster = config.DefaultAgents()
	}

	w := workforce.New(cfg.Workforce, logger)
	for _, def := range roster {
		a, err := buildAgent(def, cfg, provider, embedder, store, logger)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Name, err)
		}
		if err := w.Register(a); err != nil {
			return nil, err
		}
	}

	return &System{
		Workforce: w,
		Logger:    logger,
		cfg:       cfg,
		store:     store,
	}, nil
}

// Start launches the agent loops and, when enabled, the metrics endpoint.
func (s *System) Start(ctx context.Context) error {
	if err := s.Workforce.Start(ctx); err != nil {
		return err
	}
	if s.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		s.metricsSrv = &http.Server{
			Addr:              s.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.Logger.Error("metrics server failed", "error", err)
			}
		}()
		s.Logger.Info("metrics endpoint listening", "addr", s.cfg.Metrics.Addr)
	}
	return nil
}

// Stop shuts down agent loops, the metrics endpoint, tracing and the
// long-term store.
func (s *System) Stop(ctx context.Context) error {
	err := s.Workforce.Stop(ctx)
	if s.metricsSrv != nil {
		if serr := s.metricsSrv.Shutdown(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	if s.cfg.Tracing.Enabled {
		if terr := observability.ShutdownTracing(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// buildProvider assembles the reasoning backend: base provider, circuit
// breaker, optional rate limiter, then instrumentation.
func buildProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	var base llm.Provider
	switch cfg.Provider {
	case "openai":
		base = llm.NewOpenAIProvider(cfg.OpenAIKey, cfg.DefaultModel)
	case "mock":
		base = llm.NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	var p llm.Provider = llm.NewBreakerProvider(base, llm.BreakerConfig{}, logger)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		p = llm.NewRateLimitedProvider(p, cfg.RateLimit, burst)
	}
	return llm.NewInstrumentedProvider(p), nil
}

// buildLongTerm assembles the shared long-term memory backend. A "memory"
// backend pairs the in-process store with the hashing embedder, so the system
// works offline; "redis" pairs redis with OpenAI embeddings.
func buildLongTerm(ctx context.Context, cfg *config.Config) (embeddings.Embedder, vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case "memory":
		return embeddings.NewHashingEmbedder(0), memstore.New(), nil
	case "redis":
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis vector store: %w", err)
		}
		var embedder embeddings.Embedder = embeddings.NewHashingEmbedder(0)
		if cfg.Provider == "openai" {
			embedder = embeddings.NewOpenAIEmbedder(cfg.OpenAIKey)
		}
		return embedder, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector_backend %q", cfg.VectorBackend)
	}
}

func buildAgent(def config.AgentConfig, cfg *config.Config, provider llm.Provider,
	embedder embeddings.Embedder, store vectorstore.Store, logger *slog.Logger) (*agent.Agent, error) {

	tools := tool.NewManager()
	builtins := tool.Builtins()
	wanted := make(map[string]bool, len(def.Tools))
	for _, name := range def.Tools {
		wanted[name] = true
	}
	for _, t := range builtins {
		if len(def.Tools) > 0 && !wanted[t.Name] {
			continue
		}
		if err := tools.Register(t); err != nil {
			return nil, err
		}
		delete(wanted, t.Name)
	}
	for name := range wanted {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	opts := []memory.Option{memory.WithLogger(logger)}
	if store != nil {
		opts = append(opts, memory.WithLongTerm(embedder, store))
	}
	mem := memory.New(def.Name, memory.Config{}, opts...)

	brainCfg := cfg.Brain
	if brainCfg.MaxTokens == 0 {
		brainCfg.MaxTokens = cfg.MaxTokens
	}
	if brainCfg.Temperature == 0 {
		brainCfg.Temperature = cfg.Temperature
	}
	brain := agent.NewBrain(provider, brainCfg, logger)

	model := def.Model
	if model == "" {
		model = cfg.DefaultModel
	}
	return agent.New(agent.Config{
		Name:         def.Name,
		Role:         def.Role,
		Capabilities: def.Capabilities,
		Model:        model,
		SystemPrompt: def.SystemPrompt,
	}, brain, mem, tools, logger)
}
