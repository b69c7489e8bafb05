// Package config loads alita's settings from a config file, the environment
// and command line flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ALITA_LLM_API_KEY.
const EnvPrefix = "alita"

type Config struct {
	LLM   LLMConfig   `mapstructure:"llm"`
	Agent AgentConfig `mapstructure:"agent"`
	Log   LogConfig   `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider" validate:"required,oneof=openai deepseek anthropic ollama"`
	Model       string  `mapstructure:"model" validate:"required"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url" validate:"omitempty,url"`
	MaxRetries  int     `mapstructure:"max_retries" validate:"gte=0"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

type AgentConfig struct {
	WorkDir               string `mapstructure:"work_dir"`
	MaxIterations         int    `mapstructure:"max_iterations" validate:"gte=0"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds" validate:"gt=0"`
	MaxObservationChars   int    `mapstructure:"max_observation_chars" validate:"gte=0"`
	LoopDetectionWindow   int    `mapstructure:"loop_detection_window" validate:"gte=0"`
	// MCPConfig names an mcp.json file whose servers contribute extra tools.
	MCPConfig             string `mapstructure:"mcp_config"`
}

// CommandTimeout is the default timeout for shell commands.
func (a AgentConfig) CommandTimeout() time.Duration {
	return time.Duration(a.CommandTimeoutSeconds) * time.Second
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// DefaultModel is the model used for provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "deepseek":
		return "deepseek-chat"
	case "anthropic":
		return "claude-sonnet-4-5"
	case "ollama":
		return "llama3.1"
	default:
		return "gpt-4o-mini"
	}
}

// SetDefaults registers every key with its default value. Keys must be known
// to viper for environment overrides to apply when unmarshalling.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.temperature", 0.0)

	v.SetDefault("agent.work_dir", ".")
	v.SetDefault("agent.max_iterations", 0)
	v.SetDefault("agent.command_timeout_seconds", 30)
	v.SetDefault("agent.max_observation_chars", 0)
	v.SetDefault("agent.loop_detection_window", 10)
	v.SetDefault("agent.mcp_config", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.with_caller", false)
}

// Init prepares v to read configuration. An explicit configFile must exist;
// otherwise config.{yaml,toml,json} is looked up in the current directory,
// $HOME/.alita, the user config directory and /etc/alita, and a missing file
// is not an error.
func Init(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "reading config file %s", configFile)
		}
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("loaded config")
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.alita")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "alita"))
	}
	v.AddConfigPath("/etc/alita")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "reading config")
		}
		return nil
	}
	log.Debug().Str("file", v.ConfigFileUsed()).Msg("loaded config")
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}
