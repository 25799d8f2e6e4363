package seoflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoflow-ai/seoflow/pkg/config"
	"github.com/seoflow-ai/seoflow/proto"
)

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("provider: mock\n"))
	require.NoError(t, err)
	return cfg
}

func TestNewSystemBootstrapsDefaultRoster(t *testing.T) {
	sys, err := NewSystem(context.Background(), mockConfig(t))
	require.NoError(t, err)

	infos := sys.Workforce.ListAgents()
	require.Len(t, infos, len(config.DefaultAgents()))
	assert.Equal(t, proto.RoleCoordinator, infos[0].Role)
	assert.Contains(t, infos[1].Tools, "serp_lookup")
}

func TestSystemStartStop(t *testing.T) {
	sys, err := NewSystem(context.Background(), mockConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Start(ctx))
	require.NoError(t, sys.Stop(context.Background()))
}

func TestNewSystemRejectsUnknownTool(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Agents = []config.AgentConfig{
		{Name: "coordinator", Role: proto.RoleCoordinator},
		{Name: "res", Role: proto.RoleSEOResearcher, Tools: []string{"time_machine"}},
	}
	_, err := NewSystem(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time_machine")
}

func TestNewSystemRejectsUnknownBackend(t *testing.T) {
	cfg := mockConfig(t)
	cfg.VectorBackend = "papyrus"
	_, err := NewSystem(context.Background(), cfg)
	assert.Error(t, err)
}
