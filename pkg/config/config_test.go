package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoflow-ai/seoflow/proto"
)

const sampleYAML = `
provider: mock
default_model: test-model
vector_backend: memory
logging:
  level: debug
agents:
  - name: coordinator
    role: COORDINATOR
    system_prompt: coordinate
  - name: researcher
    role: SEO_RESEARCHER
    system_prompt: research
    tools: [serp_lookup]
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Provider)
	assert.Equal(t, "test-model", cfg.DefaultModel)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, "seoflow:ltm:", cfg.Redis.Prefix)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, proto.RoleCoordinator, cfg.Agents[0].Role)
	assert.Equal(t, []string{"serp_lookup"}, cfg.Agents[1].Tools)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seoflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Provider)

	require.NoError(t, Save(cfg, path))
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Agents, again.Agents)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"unknown provider":    "provider: watson\n",
		"unknown role":        "provider: mock\nagents:\n  - name: a\n    role: WIZARD\n",
		"duplicate names":     "provider: mock\nagents:\n  - name: a\n    role: COORDINATOR\n  - name: a\n    role: ANALYST\n",
		"missing coordinator": "provider: mock\nagents:\n  - name: a\n    role: ANALYST\n",
		"redis without addr":  "provider: mock\nvector_backend: redis\n",
	}
	for name, yml := range cases {
		_, err := Parse([]byte(yml))
		assert.Error(t, err, name)
	}
}

func TestOpenAIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte("provider: openai\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.OpenAIKey)
}

func TestDefaultAgentsIncludeCoordinator(t *testing.T) {
	agents := DefaultAgents()
	require.NotEmpty(t, agents)
	assert.Equal(t, proto.RoleCoordinator, agents[0].Role)
}
