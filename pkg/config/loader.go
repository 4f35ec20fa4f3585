package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// legacyEnvKeys maps config keys to the bare environment knob names the
// service has always honored, in addition to the SCRIBEPIPE_ prefixed form.
// PROVIDER_TIMEOUT and STALE_JOB_MINUTES carry bare second/minute counts
// and are converted after unmarshal.
var legacyEnvKeys = map[string]string{
	"chunking.max_chunk_duration":     "MAX_CHUNK_DURATION",
	"chunking.overlap_duration":       "OVERLAP_DURATION",
	"chunking.coverage_gap_threshold": "COVERAGE_GAP_THRESHOLD",
	"chunking.similarity_threshold":   "OVERLAP_SIMILARITY_THRESHOLD",
	"chunking.context_segments":       "CONTEXT_SEGMENTS",
	"provider.timeout_seconds":        "PROVIDER_TIMEOUT",
	"worker.stale_job_minutes":        "STALE_JOB_MINUTES",
}

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetEnvPrefix("SCRIBEPIPE")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/scribepipe")
		v.SetConfigName("scribepipe")
		v.SetConfigType("yaml")
	}

	for key, env := range legacyEnvKeys {
		_ = v.BindEnv(key, "SCRIBEPIPE_"+env, env)
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and returns the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - defaults and env vars apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Legacy knobs carry bare counts rather than duration strings.
	if secs := l.viper.GetInt("provider.timeout_seconds"); secs > 0 {
		cfg.Provider.Timeout = time.Duration(secs) * time.Second
	}
	if mins := l.viper.GetInt("worker.stale_job_minutes"); mins > 0 {
		cfg.Worker.StaleJobAfter = time.Duration(mins) * time.Minute
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (l *Loader) setDefaults() {
	def := DefaultConfig()

	l.viper.SetDefault("provider.name", def.Provider.Name)
	l.viper.SetDefault("provider.timeout", def.Provider.Timeout)
	l.viper.SetDefault("provider.gemini_model", def.Provider.GeminiModel)
	l.viper.SetDefault("provider.whisper_model", def.Provider.WhisperModel)

	l.viper.SetDefault("chunking.max_chunk_duration", def.Chunking.MaxChunkDuration)
	l.viper.SetDefault("chunking.overlap_duration", def.Chunking.OverlapDuration)
	l.viper.SetDefault("chunking.silence_threshold_db", def.Chunking.SilenceThresholdDB)
	l.viper.SetDefault("chunking.min_silence_duration", def.Chunking.MinSilenceDuration)
	l.viper.SetDefault("chunking.coverage_gap_threshold", def.Chunking.CoverageGapThreshold)
	l.viper.SetDefault("chunking.similarity_threshold", def.Chunking.SimilarityThreshold)
	l.viper.SetDefault("chunking.context_segments", def.Chunking.ContextSegments)

	l.viper.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	l.viper.SetDefault("retry.coverage_retries", def.Retry.CoverageRetries)
	l.viper.SetDefault("retry.base_delay", def.Retry.BaseDelay)
	l.viper.SetDefault("retry.max_delay", def.Retry.MaxDelay)
	l.viper.SetDefault("retry.jitter_max", def.Retry.JitterMax)

	l.viper.SetDefault("worker.workers", def.Worker.Workers)
	l.viper.SetDefault("worker.stale_job_after", def.Worker.StaleJobAfter)
	l.viper.SetDefault("worker.retention_days", def.Worker.RetentionDays)
	l.viper.SetDefault("worker.temp_dir", def.Worker.TempDir)

	l.viper.SetDefault("storage.backend", def.Storage.Backend)
	l.viper.SetDefault("storage.local_dir", def.Storage.LocalDir)
	l.viper.SetDefault("storage.s3.region", def.Storage.S3.Region)
	l.viper.SetDefault("storage.s3.bucket", def.Storage.S3.Bucket)

	l.viper.SetDefault("store.path", def.Store.Path)

	l.viper.SetDefault("logging.level", def.Logging.Level)
	l.viper.SetDefault("logging.format", def.Logging.Format)
	l.viper.SetDefault("logging.output", def.Logging.Output)
	l.viper.SetDefault("logging.timestamp", def.Logging.Timestamp)
}

func validate(cfg *Config) error {
	c := cfg.Chunking
	if c.MaxChunkDuration <= 0 {
		return fmt.Errorf("max_chunk_duration must be positive, got %v", c.MaxChunkDuration)
	}
	if c.OverlapDuration < 0 || c.OverlapDuration >= c.MaxChunkDuration {
		return fmt.Errorf("overlap_duration %v must be in [0, max_chunk_duration)", c.OverlapDuration)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold %v must be in [0, 1]", c.SimilarityThreshold)
	}
	if c.ContextSegments < 0 {
		return fmt.Errorf("context_segments must not be negative")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if cfg.Worker.Workers < 1 {
		return fmt.Errorf("worker.workers must be at least 1")
	}
	switch cfg.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return nil
}
