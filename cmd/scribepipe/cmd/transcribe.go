package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scribepipe/scribepipe/pkg/queue"
	"github.com/scribepipe/scribepipe/pkg/storage"
	"github.com/scribepipe/scribepipe/pkg/store"
	"github.com/scribepipe/scribepipe/pkg/transcript"
	"github.com/scribepipe/scribepipe/pkg/worker"
)

var (
	transcribeProvider string
	transcribeLanguage string
	transcribePrompt   string
	transcribeOutput   string
	transcribeTextOnly bool
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe a single file and print the result",
	Long: `Runs one file through the full pipeline in-process, without the worker
pool or the job database, and writes the transcript to stdout or a file.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVarP(&transcribeProvider, "provider", "p", "", "speech-to-text provider (default from config)")
	transcribeCmd.Flags().StringVarP(&transcribeLanguage, "language", "l", "", "audio language as a BCP-47 tag")
	transcribeCmd.Flags().StringVar(&transcribePrompt, "prompt", "", "extra instructions for the provider")
	transcribeCmd.Flags().StringVarP(&transcribeOutput, "output", "o", "", "output file (default stdout)")
	transcribeCmd.Flags().BoolVar(&transcribeTextOnly, "text", false, "print plain text instead of JSON")
	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inputPath := args[0]
	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	blobDir, err := os.MkdirTemp("", "scribepipe-oneshot-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(blobDir) }()

	blob, err := storage.NewLocalBlob(blobDir)
	if err != nil {
		return err
	}

	st := store.NewMemoryStore()
	q := queue.NewMemoryQueue(1)
	defer func() { _ = q.Close() }()

	orch := worker.NewOrchestrator(st, blob, q, cfg)
	j, err := orch.Submit(ctx, f, worker.SubmitRequest{
		Filename: filepath.Base(inputPath),
		Size:     stat.Size(),
		Provider: transcribeProvider,
		Language: transcribeLanguage,
		Prompt:   transcribePrompt,
	})
	if err != nil {
		return err
	}

	proc := worker.NewProcessor(st, blob, cfg, worker.ProviderFactory(cfg))
	if err := proc.ProcessJob(ctx, j.ID); err != nil {
		return err
	}

	final, err := st.GetJob(ctx, j.ID)
	if err != nil {
		return err
	}
	if final.ErrorCode != "" {
		return fmt.Errorf("transcription failed (%s): %s", final.ErrorCode, final.ErrorMessage)
	}

	rc, err := blob.Download(ctx, final.ResultKey)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	if transcribeTextOnly {
		var doc transcript.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		data = []byte(doc.Transcript.Text + "\n")
	}

	if transcribeOutput != "" {
		return os.WriteFile(transcribeOutput, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}
