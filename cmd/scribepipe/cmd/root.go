// Package cmd implements the scribepipe command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scribepipe/scribepipe/pkg/config"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/storage"
	"github.com/scribepipe/scribepipe/pkg/store"

	// Provider adapters register themselves on import.
	_ "github.com/scribepipe/scribepipe/pkg/providers/gemini"
	_ "github.com/scribepipe/scribepipe/pkg/providers/whisper"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "scribepipe",
	Short: "Speech-to-text transcription pipeline",
	Long: `scribepipe turns long audio and video recordings into timestamped
transcripts. Files are normalized with ffmpeg, split into overlapping
chunks at silent moments, transcribed chunk by chunk through a
speech-to-text provider, and merged back into a single transcript.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewLoader(cfgFile).Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		return logger.Initialize(&cfg.Logging)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., $HOME, /etc/scribepipe)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")
}

// newBlob builds the configured blob storage backend.
func newBlob() (storage.Blob, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Blob(cfg.Storage.S3)
	case "local":
		return storage.NewLocalBlob(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newStore opens the job database.
func newStore() (store.Store, error) {
	return store.NewBoltStore(cfg.Store.Path)
}
