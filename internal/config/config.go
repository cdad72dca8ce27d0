package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Queue         QueueConfig         `mapstructure:"queue" validate:"required"`
	Redis         RedisConfig         `mapstructure:"redis" validate:"required"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	Analysis      AnalysisConfig      `mapstructure:"analysis" validate:"required"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// QueueConfig contains the RabbitMQ broker settings for job delivery.
type QueueConfig struct {
	URL        string `mapstructure:"url" validate:"required"`
	Exchange   string `mapstructure:"exchange" validate:"required"`
	RoutingKey string `mapstructure:"routing_key" validate:"required"`
	QueueName  string `mapstructure:"queue_name" validate:"required"`
}

// RedisConfig contains the cache settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"required"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"required"`
}

// StorageConfig contains the object storage settings used to fetch
// submitted recordings by file ID. Optional: jobs submitted with a
// reachable local input path never touch object storage.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// TranscriptionConfig contains the speech-to-text service settings.
type TranscriptionConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required"`
}

// AnalysisConfig contains the Gemini analysis workflow settings.
type AnalysisConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
}

// PipelineConfig contains the knobs for splitting, transcription
// concurrency, liveness, and the reaper.
type PipelineConfig struct {
	// WorkDir is where converted inputs and chunk files are written.
	WorkDir string `mapstructure:"work_dir" validate:"required"`

	// JobConcurrency bounds how many jobs one worker processes at once.
	JobConcurrency int `mapstructure:"job_concurrency" validate:"required,gt=0"`

	// ChunkConcurrency bounds in-flight chunk transcriptions per job.
	ChunkConcurrency int `mapstructure:"chunk_concurrency" validate:"required,gt=0"`

	// MaxRetries caps retries of a single remote call.
	MaxRetries int `mapstructure:"max_retries" validate:"required,gt=0"`

	// SoftChunkDuration is the preferred chunk length; splits are taken at
	// the first silence past it.
	SoftChunkDuration time.Duration `mapstructure:"soft_chunk_duration" validate:"required"`

	// HardChunkDuration is the chunk length ceiling enforced by force-splits.
	HardChunkDuration time.Duration `mapstructure:"hard_chunk_duration" validate:"required"`

	// HardChunkBytes is the chunk size ceiling; splits trigger at 80% of it.
	HardChunkBytes int64 `mapstructure:"hard_chunk_bytes" validate:"required,gt=0"`

	// SilenceThresholdDB is the silencedetect noise floor in dB.
	SilenceThresholdDB float64 `mapstructure:"silence_threshold_db" validate:"required"`

	// SilenceMinDuration is the minimum silence length worth splitting at.
	SilenceMinDuration time.Duration `mapstructure:"silence_min_duration" validate:"required"`

	// MinChunkSuccessRate is the quality-gate floor (0..1).
	MinChunkSuccessRate float64 `mapstructure:"min_chunk_success_rate" validate:"required,gt=0,lte=1"`

	// HeartbeatInterval is how often a running job refreshes its liveness.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"required"`

	// HeartbeatTimeout is how stale a heartbeat may be before the reaper
	// declares the job stalled.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" validate:"required"`

	// MaxJobDuration is the hard deadline for one attempt.
	MaxJobDuration time.Duration `mapstructure:"max_job_duration" validate:"required"`

	// MaxAttempts caps how many times a job may be claimed.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// ReaperInterval is the period between stalled-job sweeps.
	ReaperInterval time.Duration `mapstructure:"reaper_interval" validate:"required"`
}
