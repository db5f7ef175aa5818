package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables, so that e.g.
// server.port is read from TGAGENT_SERVER_PORT.
const envPrefix = "TGAGENT"

// Load reads and validates the backend configuration from the environment.
func Load() (*Config, error) {
	v := newViper()

	// Defaults. Keys without defaults still need a SetDefault("") so that
	// viper's Unmarshal sees their environment values.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.url", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.webhook_secret", "")
	v.SetDefault("assemblyai.api_key", "")
	v.SetDefault("assemblyai.base_url", "https://api.assemblyai.com/v2")
	v.SetDefault("assemblyai.webhook_base_url", "")
	v.SetDefault("assemblyai.default_model", "nano")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("bot.base_url", "")
	v.SetDefault("bot.secret_token", "")
	v.SetDefault("tasks.transcription_limit", 2)
	v.SetDefault("tasks.report_limit", 3)
	v.SetDefault("tasks.default_limit", 5)
	v.SetDefault("tasks.retention_minutes", 5)

	var cfg Config
	if err := unmarshalAndValidate(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadBot reads and validates the bot service configuration from the
// environment.
func LoadBot() (*BotConfig, error) {
	v := newViper()

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("auth.secret_token", "")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("messages.processing", "")
	v.SetDefault("messages.processing_audio", "")
	v.SetDefault("messages.already_running", "")
	v.SetDefault("messages.cancelled_by_user", "")
	v.SetDefault("messages.rejected", "")
	v.SetDefault("messages.agent_failure", "")
	v.SetDefault("messages.stt_failure", "")
	v.SetDefault("messages.cancel_button", "")

	var cfg BotConfig
	if err := unmarshalAndValidate(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshalAndValidate(v *viper.Viper, cfg interface{}) error {
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
