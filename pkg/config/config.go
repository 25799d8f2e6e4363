// Package config loads the workforce configuration from YAML, with
// environment fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seoflow-ai/seoflow/agent"
	"github.com/seoflow-ai/seoflow/proto"
	"github.com/seoflow-ai/seoflow/workforce"
)

// Config is the application configuration.
type Config struct {
	// Provider selects the reasoning backend: "openai" or "mock".
	Provider  string `yaml:"provider"`
	OpenAIKey string `yaml:"openai_key"`

	// Model configuration.
	DefaultModel   string  `yaml:"default_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`

	// RateLimit caps provider calls per second; zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit"`

	// Long-term memory backend: "memory" or "redis".
	VectorBackend string      `yaml:"vector_backend"`
	Redis         RedisConfig `yaml:"redis"`

	Brain     agent.BrainConfig `yaml:"brain"`
	Workforce workforce.Config  `yaml:"workforce"`

	// Agents to bootstrap, in startup order.
	Agents []AgentConfig `yaml:"agents"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// AgentConfig describes one agent to bootstrap.
type AgentConfig struct {
	Name         string     `yaml:"name"`
	Role         proto.Role `yaml:"role"`
	Model        string     `yaml:"model"`
	SystemPrompt string     `yaml:"system_prompt"`
	Capabilities []string   `yaml:"capabilities"`
	// Tools lists builtin tool names to register; empty means all builtins.
	Tools []string `yaml:"tools"`
}

// RedisConfig configures the redis long-term memory backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig configures trace export.
type TracingConfig struct {
	Enabled     bool `yaml:"enabled"`
	PrettyPrint bool `yaml:"pretty_print"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes, applies defaults and
// environment fallbacks, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.VectorBackend == "" {
		cfg.VectorBackend = "memory"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "seoflow:ltm:"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for problems that would only surface at
// runtime.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("provider %q requires openai_key or OPENAI_API_KEY", c.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.VectorBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("vector_backend %q requires redis.addr", c.VectorBackend)
		}
	default:
		return fmt.Errorf("unknown vector_backend %q", c.VectorBackend)
	}

	coordinators := 0
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
		if !a.Role.Valid() {
			return fmt.Errorf("agent %s: unknown role %q", a.Name, a.Role)
		}
		if a.Role == proto.RoleCoordinator {
			coordinators++
		}
	}
	if len(c.Agents) > 0 && coordinators == 0 {
		return fmt.Errorf("at least one COORDINATOR agent is required")
	}
	return nil
}

// DefaultAgents is the bootstrap roster used when the configuration lists no
// agents.
func DefaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Name:         "coordinator",
			Role:         proto.RoleCoordinator,
			SystemPrompt: "You coordinate an SEO content team. Decompose campaign goals into focused subtasks.",
		},
		{
			Name:         "researcher",
			Role:         proto.RoleSEOResearcher,
			SystemPrompt: "You research keywords, search intent and competitors for content campaigns.",
			Tools:        []string{"serp_lookup", "keyword_density"},
		},
		{
			Name:         "writer",
			Role:         proto.RoleContentCreator,
			SystemPrompt: "You write SEO-optimized articles and landing pages from research briefs.",
			Tools:        []string{"keyword_density", "readability_score"},
		},
		{
			Name:         "analyst",
			Role:         proto.RoleAnalyst,
			SystemPrompt: "You review drafts for SEO quality and report concrete improvements.",
			Tools:        []string{"keyword_density", "readability_score"},
		},
	}
}
