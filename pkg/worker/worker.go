// Package worker contains the processing side of the pipeline: the job
// processor, the per-chunk driver, the worker pool, the stale-job sweeper
// and the lifecycle orchestrator.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scribepipe/scribepipe/pkg/audio"
	"github.com/scribepipe/scribepipe/pkg/config"
	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/providers"
	"github.com/scribepipe/scribepipe/pkg/storage"
	"github.com/scribepipe/scribepipe/pkg/store"
	"github.com/scribepipe/scribepipe/pkg/stterr"
	"github.com/scribepipe/scribepipe/pkg/transcript"
)

// ProviderFunc resolves a provider name to a ready adapter.
type ProviderFunc func(name string) (providers.Provider, error)

// ProviderFactory builds a ProviderFunc that wires API keys and models
// from configuration, defaulting to the configured provider when a job
// did not choose one.
func ProviderFactory(cfg *config.Config) ProviderFunc {
	return func(name string) (providers.Provider, error) {
		if name == "" {
			name = cfg.Provider.Name
		}
		fc := providers.FactoryConfig{Timeout: cfg.Provider.Timeout}
		switch name {
		case "gemini":
			fc.APIKey = cfg.Provider.GeminiAPIKey
			fc.Model = cfg.Provider.GeminiModel
			fc.BaseURL = cfg.Provider.GeminiURL
		case "whisper":
			fc.APIKey = cfg.Provider.OpenAIAPIKey
			fc.Model = cfg.Provider.WhisperModel
			fc.BaseURL = cfg.Provider.OpenAIURL
		}
		return providers.New(name, fc)
	}
}

// Processor runs a job from UPLOADED to a terminal status.
type Processor struct {
	store       store.Store
	blob        storage.Blob
	cfg         *config.Config
	normalizer  audio.Normalizer
	chunker     audio.Chunker
	newProvider ProviderFunc
	notifier    *WebhookNotifier
}

// NewProcessor wires a processor with production audio components.
func NewProcessor(st store.Store, blob storage.Blob, cfg *config.Config, newProvider ProviderFunc) *Processor {
	return &Processor{
		store:      st,
		blob:       blob,
		cfg:        cfg,
		normalizer: audio.NewNormalizer(),
		chunker: audio.NewChunker(
			cfg.Chunking.MaxChunkDuration,
			cfg.Chunking.OverlapDuration,
			cfg.Chunking.SilenceThresholdDB,
			cfg.Chunking.MinSilenceDuration,
		),
		newProvider: newProvider,
		notifier:    NewWebhookNotifier(st),
	}
}

// WithAudio replaces the audio components, used by tests and by callers
// that already hold normalized audio.
func (p *Processor) WithAudio(n audio.Normalizer, c audio.Chunker) *Processor {
	p.normalizer = n
	p.chunker = c
	return p
}

// ProcessJob drives one job to a terminal status. A nil return means the
// job reached a terminal status (including FAILED and CANCELLED) and its
// queue delivery may be acknowledged; an error means processing was
// interrupted and the job should be redelivered.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := logger.WithJob("processor", jobID)
	started := time.Now()

	j, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Msg("Dequeued job no longer exists")
			return nil
		}
		return err
	}
	if j.Status.Terminal() {
		log.Debug().Str("status", string(j.Status)).Msg("Job already terminal, skipping")
		return nil
	}

	j, err = p.store.UpdateJob(ctx, jobID, func(cur *job.Job) error {
		return cur.SetStatus(job.StatusProcessing)
	})
	if err != nil {
		// Lost the race: either a cancellation, or a duplicate delivery
		// of a job another worker already claimed. Both are ack-and-move-on.
		if cur, gerr := p.store.GetJob(ctx, jobID); gerr == nil &&
			(cur.Status.Terminal() || cur.Status == job.StatusProcessing) {
			return nil
		}
		return err
	}

	log.Info().
		Str("provider", j.Provider).
		Str("file", j.OriginalFilename).
		Msg("Job processing started")

	workDir, err := os.MkdirTemp(p.cfg.Worker.TempDir, "job-"+jobID+"-")
	if err != nil {
		if merr := os.MkdirAll(p.cfg.Worker.TempDir, 0o755); merr == nil {
			workDir, err = os.MkdirTemp(p.cfg.Worker.TempDir, "job-"+jobID+"-")
		}
		if err != nil {
			return fmt.Errorf("failed to create work directory: %w", err)
		}
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	results, providerName, err := p.runPipeline(ctx, j, workDir)
	if err != nil {
		if errors.Is(err, ErrJobCancelled) {
			log.Info().Msg("Job cancelled during processing")
			return nil
		}
		if ctx.Err() != nil {
			// Shutdown, not a job fault: leave the job for redelivery.
			return ctx.Err()
		}
		return p.failJob(ctx, jobID, err)
	}

	merged := transcript.NewMerger(
		p.cfg.Chunking.SimilarityThreshold,
		p.cfg.Chunking.CoverageGapThreshold,
	)
	doc := p.buildDocument(j, results, merged, providerName, time.Since(started))

	if err := p.uploadResult(ctx, jobID, doc); err != nil {
		return p.failJob(ctx, jobID, err)
	}

	j, err = p.store.UpdateJob(ctx, jobID, func(cur *job.Job) error {
		cur.ResultKey = storage.ResultKey(jobID)
		return cur.SetStatus(job.StatusCompleted)
	})
	if err != nil {
		if cur, gerr := p.store.GetJob(ctx, jobID); gerr == nil && cur.Status == job.StatusCancelled {
			return nil
		}
		return err
	}

	log.Info().
		Int("chunks", doc.ChunksProcessed).
		Float64("duration", doc.DurationSeconds).
		Dur("elapsed", time.Since(started)).
		Msg("Job completed")

	p.notifier.Notify(ctx, j)
	return nil
}

// runPipeline executes download, normalization, chunking and per-chunk
// transcription, returning the chunk results in order.
func (p *Processor) runPipeline(ctx context.Context, j *job.Job, workDir string) ([]transcript.ChunkResult, string, error) {
	log := logger.WithJob("processor", j.ID)

	inputPath := filepath.Join(workDir, "original."+j.Extension)
	if err := p.downloadOriginal(ctx, j, inputPath); err != nil {
		return nil, "", err
	}

	wavPath := filepath.Join(workDir, "normalized.wav")
	info, err := p.normalizer.Normalize(ctx, inputPath, j.Extension, wavPath)
	if err != nil {
		return nil, "", err
	}

	if _, err := p.store.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
		cur.DurationSeconds = info.Duration
		return nil
	}); err != nil {
		return nil, "", err
	}

	chunkFiles, err := p.chunker.ChunkFile(ctx, wavPath, info.Duration, filepath.Join(workDir, "chunks"))
	if err != nil {
		return nil, "", err
	}

	chunks := make([]*job.Chunk, len(chunkFiles))
	for i, cf := range chunkFiles {
		key := storage.ChunkKey(j.ID, cf.Index)
		if err := p.uploadFile(ctx, key, cf.Path); err != nil {
			return nil, "", err
		}
		chunks[i] = &job.Chunk{
			JobID:      j.ID,
			Index:      cf.Index,
			StartTime:  cf.Start,
			EndTime:    cf.End,
			StorageKey: key,
			Status:     job.ChunkPending,
		}
	}
	if err := p.store.CreateChunks(ctx, j.ID, chunks); err != nil {
		return nil, "", err
	}
	if _, err := p.store.UpdateJob(ctx, j.ID, func(cur *job.Job) error {
		cur.TotalChunks = len(chunks)
		cur.CompletedChunks = 0
		return nil
	}); err != nil {
		return nil, "", err
	}

	provider, err := p.newProvider(j.Provider)
	if err != nil {
		return nil, "", err
	}
	driver := NewChunkDriver(p.store, provider, p.cfg)

	log.Info().
		Int("chunks", len(chunks)).
		Float64("duration", info.Duration).
		Str("provider", provider.Name()).
		Msg("Transcribing chunks")

	// Chunks run sequentially: each receives the previous chunk's
	// trailing segments as context, so chunk n cannot start before
	// chunk n-1 finished.
	results := make([]transcript.ChunkResult, 0, len(chunks))
	contextText := ""
	for i, chunk := range chunks {
		data, err := os.ReadFile(chunkFiles[i].Path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read chunk %d: %w", chunk.Index, err)
		}

		res, err := driver.ProcessChunk(ctx, j.ID, chunk, data, providers.ChunkConfig{
			Language:      j.Language,
			Prompt:        j.Prompt,
			ContextText:   contextText,
			ChunkIndex:    chunk.Index,
			ChunkDuration: chunk.Duration(),
		})
		if err != nil {
			return nil, "", err
		}

		results = append(results, transcript.ChunkResult{
			Index:    chunk.Index,
			Start:    chunk.StartTime,
			End:      chunk.EndTime,
			Segments: res.Segments,
		})
		contextText = trailingText(res.Segments, p.cfg.Chunking.ContextSegments)
	}

	return results, provider.Name(), nil
}

func (p *Processor) downloadOriginal(ctx context.Context, j *job.Job, dest string) error {
	rc, err := p.blob.Download(ctx, j.OriginalKey)
	if err != nil {
		return fmt.Errorf("failed to download original: %w", err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}
	return nil
}

func (p *Processor) uploadFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return p.blob.Upload(ctx, key, f)
}

func (p *Processor) buildDocument(j *job.Job, results []transcript.ChunkResult, m *transcript.Merger, providerName string, elapsed time.Duration) *transcript.Document {
	merged := m.Merge(results)
	for _, w := range merged.Warnings {
		logger.WithJob("processor", j.ID).Warn().Msg(w)
	}

	return &transcript.Document{
		JobID:                 j.ID,
		DurationSeconds:       j.DurationSeconds,
		ProviderUsed:          providerName,
		ProcessingTimeSeconds: elapsed.Seconds(),
		ChunksProcessed:       len(results),
		Transcript: transcript.Body{
			Text:     m.FullText(merged.Segments),
			Segments: merged.Segments,
		},
	}
}

func (p *Processor) uploadResult(ctx context.Context, jobID string, doc *transcript.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return p.blob.Upload(ctx, storage.ResultKey(jobID), strings.NewReader(string(data)))
}

// failJob records a classified failure on the job. Returns nil so the
// delivery gets acknowledged: the job is terminal.
func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	kind, message := stterr.Classify(cause)

	j, err := p.store.UpdateJob(ctx, jobID, func(cur *job.Job) error {
		return cur.Fail(string(kind), message)
	})
	if err != nil {
		// Already terminal (e.g. cancelled between chunk and here).
		if cur, gerr := p.store.GetJob(ctx, jobID); gerr == nil && cur.Status.Terminal() {
			return nil
		}
		return err
	}

	logger.WithJob("processor", jobID).Error().
		Str("error_code", string(kind)).
		Str("error", message).
		Msg("Job failed")

	p.notifier.Notify(ctx, j)
	return nil
}

// trailingText joins the last n segment texts, the continuity context fed
// to the next chunk's provider call.
func trailingText(segments []job.Segment, n int) string {
	if n <= 0 || len(segments) == 0 {
		return ""
	}
	if len(segments) > n {
		segments = segments[len(segments)-n:]
	}
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, strings.TrimSpace(s.Text))
	}
	return strings.Join(parts, " ")
}
