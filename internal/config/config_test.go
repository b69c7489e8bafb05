package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, configFile string) (*Config, error) {
	t.Helper()
	v := viper.New()
	require.NoError(t, Init(v, configFile))
	return Load(v)
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Equal(t, 0, cfg.Agent.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Agent.CommandTimeout())
	assert.Equal(t, 10, cfg.Agent.LoopDetectionWindow)
	assert.Empty(t, cfg.Agent.MCPConfig)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alita.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: deepseek
  max_retries: 5
agent:
  max_iterations: 20
  command_timeout_seconds: 90
log:
  level: debug
`), 0644))
	t.Setenv("ALITA_LLM_API_KEY", "sk-test")
	t.Setenv("ALITA_AGENT_MAX_ITERATIONS", "7")

	cfg, err := load(t, path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.Equal(t, 7, cfg.Agent.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.Agent.CommandTimeout())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMissingExplicitConfigFile(t *testing.T) {
	v := viper.New()
	assert.Error(t, Init(v, filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown provider", "llm.provider", "parrot"},
		{"bad base url", "llm.base_url", "not a url"},
		{"negative iterations", "agent.max_iterations", -1},
		{"zero timeout", "agent.command_timeout_seconds", 0},
		{"unknown level", "log.level", "chatty"},
		{"unknown format", "log.format", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}
