package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values and use the VIVIDLY_ prefix with
// underscores for nesting (e.g. VIVIDLY_WORKER_BATCH_SIZE).
// Returns a populated Config or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VIVIDLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not surface env-only keys to Unmarshal unless
	// they are bound or have defaults; bind the keys that carry
	// secrets and endpoints.
	for _, key := range []string{
		"database.url",
		"queue.url",
		"llm.gemini_api_key",
		"speech.openai_api_key",
		"render.base_url",
		"retrieval.base_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; environment variables alone
		// can carry a full configuration.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies the defaults documented in the deployment notes.
// Anything marked required without a default must come from the
// environment or the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.log_level", "info")
	v.SetDefault("worker.max_runtime_seconds", 300)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.pull_timeout_seconds", 10)
	v.SetDefault("worker.empty_queue_seconds", 60)
	v.SetDefault("worker.warn_deliveries", 3)
	v.SetDefault("worker.max_deliveries", 5)
	v.SetDefault("worker.stage_attempts", 3)
	v.SetDefault("worker.stage_retry_delay_seconds", 2)

	v.SetDefault("queue.stream", "CONTENT")
	v.SetDefault("queue.subject", "content.requests")
	v.SetDefault("queue.durable", "content-worker")
	v.SetDefault("queue.notify_subject", "content.notifications")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("speech.model", "tts-1")
	v.SetDefault("speech.voice", "alloy")

	v.SetDefault("render.timeout_seconds", 120)
	v.SetDefault("retrieval.timeout_seconds", 30)
}
