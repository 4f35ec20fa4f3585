package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scribepipe/scribepipe/pkg/queue"
	"github.com/scribepipe/scribepipe/pkg/worker"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage transcription jobs",
}

var jobsSubmitWebhook string
var jobsSubmitProvider string
var jobsSubmitLanguage string
var jobsSubmitPrompt string

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a file for transcription by the worker pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		st, err := newStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		blob, err := newBlob()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		stat, err := f.Stat()
		if err != nil {
			return err
		}

		// The running worker's requeue scan picks the job up; the local
		// queue only satisfies the submit path.
		orch := worker.NewOrchestrator(st, blob, queue.NewMemoryQueue(1), cfg)
		j, err := orch.Submit(ctx, f, worker.SubmitRequest{
			Filename:   filepath.Base(args[0]),
			Size:       stat.Size(),
			Provider:   jobsSubmitProvider,
			Language:   jobsSubmitLanguage,
			Prompt:     jobsSubmitPrompt,
			WebhookURL: jobsSubmitWebhook,
		})
		if err != nil {
			return err
		}
		fmt.Println(j.ID)
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		j, err := st.GetJob(context.Background(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(j, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return withOrchestrator(args[0], cancelOp) },
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a failed job from the beginning",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return withOrchestrator(args[0], retryOp) },
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a terminal job and all its stored files",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return withOrchestrator(args[0], deleteOp) },
}

var jobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete terminal jobs past the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator("", func(ctx context.Context, o *worker.Orchestrator, _ string) error {
			removed, err := o.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired jobs\n", removed)
			return nil
		})
	},
}

func cancelOp(ctx context.Context, o *worker.Orchestrator, id string) error {
	j, err := o.Cancel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(j.Status)
	return nil
}

func retryOp(ctx context.Context, o *worker.Orchestrator, id string) error {
	j, err := o.Retry(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(j.Status)
	return nil
}

func deleteOp(ctx context.Context, o *worker.Orchestrator, id string) error {
	return o.Delete(ctx, id)
}

func withOrchestrator(jobID string, op func(context.Context, *worker.Orchestrator, string) error) error {
	st, err := newStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	blob, err := newBlob()
	if err != nil {
		return err
	}

	orch := worker.NewOrchestrator(st, blob, queue.NewMemoryQueue(1), cfg)
	return op(context.Background(), orch, jobID)
}

func init() {
	jobsSubmitCmd.Flags().StringVarP(&jobsSubmitProvider, "provider", "p", "", "speech-to-text provider (default from config)")
	jobsSubmitCmd.Flags().StringVarP(&jobsSubmitLanguage, "language", "l", "", "audio language as a BCP-47 tag")
	jobsSubmitCmd.Flags().StringVar(&jobsSubmitPrompt, "prompt", "", "extra instructions for the provider")
	jobsSubmitCmd.Flags().StringVar(&jobsSubmitWebhook, "webhook", "", "URL to POST when the job finishes")

	jobsCmd.AddCommand(jobsSubmitCmd, jobsStatusCmd, jobsCancelCmd, jobsRetryCmd, jobsDeleteCmd, jobsCleanupCmd)
	rootCmd.AddCommand(jobsCmd)
}
