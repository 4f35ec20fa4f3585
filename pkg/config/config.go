package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/scribepipe/scribepipe/pkg/logger"
)

// Config represents the worker configuration, read once at boot and treated
// as immutable afterwards.
type Config struct {
	// Provider Configuration
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`

	// Chunking Configuration
	Chunking ChunkingConfig `yaml:"chunking" mapstructure:"chunking"`

	// Retry Configuration
	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`

	// Worker Configuration
	Worker WorkerConfig `yaml:"worker" mapstructure:"worker"`

	// Blob storage Configuration
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Relational store Configuration
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Logging Configuration
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ProviderConfig contains STT provider settings
type ProviderConfig struct {
	// Default provider name when a job does not choose one
	Name string `yaml:"name" mapstructure:"name"`

	// Per-attempt call timeout
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Google Gemini
	GeminiAPIKey string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model" mapstructure:"gemini_model"`
	GeminiURL    string `yaml:"gemini_url" mapstructure:"gemini_url"`

	// OpenAI Whisper
	OpenAIAPIKey string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	WhisperModel string `yaml:"whisper_model" mapstructure:"whisper_model"`
	OpenAIURL    string `yaml:"openai_url" mapstructure:"openai_url"`
}

// ChunkingConfig contains audio chunking settings. All durations are
// seconds.
type ChunkingConfig struct {
	MaxChunkDuration   float64 `yaml:"max_chunk_duration" mapstructure:"max_chunk_duration"`
	OverlapDuration    float64 `yaml:"overlap_duration" mapstructure:"overlap_duration"`
	SilenceThresholdDB float64 `yaml:"silence_threshold_db" mapstructure:"silence_threshold_db"`
	MinSilenceDuration float64 `yaml:"min_silence_duration" mapstructure:"min_silence_duration"`

	// Coverage validation and overlap merging
	CoverageGapThreshold float64 `yaml:"coverage_gap_threshold" mapstructure:"coverage_gap_threshold"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	ContextSegments      int     `yaml:"context_segments" mapstructure:"context_segments"`
}

// RetryConfig contains backoff settings for transient provider faults.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	CoverageRetries int           `yaml:"coverage_retries" mapstructure:"coverage_retries"`
	BaseDelay       time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	JitterMax       time.Duration `yaml:"jitter_max" mapstructure:"jitter_max"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	Workers       int           `yaml:"workers" mapstructure:"workers"`
	StaleJobAfter time.Duration `yaml:"stale_job_after" mapstructure:"stale_job_after"`
	RetentionDays int           `yaml:"retention_days" mapstructure:"retention_days"`
	TempDir       string        `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StorageConfig selects and configures the blob storage backend.
type StorageConfig struct {
	// Backend is "local" or "s3"
	Backend  string   `yaml:"backend" mapstructure:"backend"`
	LocalDir string   `yaml:"local_dir" mapstructure:"local_dir"`
	S3       S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config holds S3/MinIO settings.
type S3Config struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	Region          string `yaml:"region" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style" mapstructure:"path_style"`
}

// StoreConfig configures the job/chunk store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:         "gemini",
			Timeout:      120 * time.Second,
			GeminiModel:  "gemini-2.5-pro",
			WhisperModel: "whisper-1",
		},
		Chunking: ChunkingConfig{
			MaxChunkDuration:     300,
			OverlapDuration:      10,
			SilenceThresholdDB:   -30,
			MinSilenceDuration:   0.3,
			CoverageGapThreshold: 15,
			SimilarityThreshold:  0.8,
			ContextSegments:      3,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			CoverageRetries: 2,
			BaseDelay:       2 * time.Second,
			MaxDelay:        60 * time.Second,
			JitterMax:       time.Second,
		},
		Worker: WorkerConfig{
			Workers:       4,
			StaleJobAfter: 30 * time.Minute,
			RetentionDays: 30,
			TempDir:       filepath.Join(os.TempDir(), "scribepipe"),
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: filepath.Join(os.TempDir(), "scribepipe-blobs"),
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "scribepipe-files",
			},
		},
		Store: StoreConfig{
			Path: "scribepipe.db",
		},
		Logging: *logger.DefaultConfig(),
	}
}
