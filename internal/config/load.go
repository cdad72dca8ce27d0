package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and optionally a
// config file. Environment variables take precedence over file values and
// use the VOXNOTE_ prefix with underscores for nesting, e.g.
// VOXNOTE_DATABASE_URL or VOXNOTE_PIPELINE_CHUNK_CONCURRENCY.
// Returns a populated Config or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/voxnote")

	v.SetEnvPrefix("VOXNOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper's Unmarshal only sees keys it knows about; AutomaticEnv alone
	// does not register keys. Bind the keys that have no default so their
	// environment variables are picked up.
	for _, key := range []string{
		"database.url",
		"queue.url",
		"redis.password",
		"storage.endpoint",
		"storage.access_key",
		"storage.secret_key",
		"storage.bucket",
		"storage.use_ssl",
		"transcription.base_url",
		"transcription.api_key",
		"analysis.gemini_api_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars alone can fully configure us.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Pipeline.HardChunkDuration < cfg.Pipeline.SoftChunkDuration {
		return nil, fmt.Errorf(
			"config validation failed: hard chunk duration %s is below soft chunk duration %s",
			cfg.Pipeline.HardChunkDuration, cfg.Pipeline.SoftChunkDuration)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every recognized option so a minimal
// environment (database, queue, and API credentials) is enough to start.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("queue.exchange", "voxnote.jobs")
	v.SetDefault("queue.routing_key", "jobs.transcription")
	v.SetDefault("queue.queue_name", "voxnote.jobs.transcription")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", time.Hour)

	v.SetDefault("transcription.request_timeout", 2*time.Minute)

	v.SetDefault("analysis.model_name", "gemini-2.0-flash")

	v.SetDefault("pipeline.work_dir", "/tmp/voxnote")
	v.SetDefault("pipeline.job_concurrency", 2)
	v.SetDefault("pipeline.chunk_concurrency", 4)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.soft_chunk_duration", 3*time.Minute)
	v.SetDefault("pipeline.hard_chunk_duration", 5*time.Minute)
	v.SetDefault("pipeline.hard_chunk_bytes", int64(24*1024*1024))
	v.SetDefault("pipeline.silence_threshold_db", -30.0)
	v.SetDefault("pipeline.silence_min_duration", 500*time.Millisecond)
	v.SetDefault("pipeline.min_chunk_success_rate", 0.8)
	v.SetDefault("pipeline.heartbeat_interval", 15*time.Second)
	v.SetDefault("pipeline.heartbeat_timeout", 2*time.Minute)
	v.SetDefault("pipeline.max_job_duration", 30*time.Minute)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.reaper_interval", time.Minute)
}
