// Package whisper implements the OpenAI Whisper speech-to-text adapter.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/providers"
	"github.com/scribepipe/scribepipe/pkg/stterr"
)

// Name is the registry name of this provider.
const Name = "whisper"

const defaultModel = "whisper-1"

func init() {
	providers.Register(Name, func(cfg providers.FactoryConfig) (providers.Provider, error) {
		return NewProvider(cfg)
	})
}

// Provider transcribes audio through the OpenAI audio transcription API.
// Whisper returns native segment timestamps, so no prompt-driven JSON
// schema is needed; the user prompt and context text are passed through
// the API's prompt field for vocabulary continuity.
type Provider struct {
	client *openai.Client
	model  string
}

// NewProvider creates a Whisper provider from factory configuration.
func NewProvider(cfg providers.FactoryConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, stterr.New(stterr.KindAuthError, Name, "openai api key is not configured")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := defaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Provider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

// Transcribe implements providers.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg providers.ChunkConfig) (*providers.Result, error) {
	log := logger.WithComponent("whisper").WithField("chunk_index", cfg.ChunkIndex)

	if len(audio) == 0 {
		return nil, stterr.New(stterr.KindInvalidAudio, Name, "empty audio data")
	}

	req := openai.AudioRequest{
		Model:    p.model,
		Reader:   bytes.NewReader(audio),
		FilePath: "chunk.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: cfg.Language,
		Prompt:   whisperPrompt(cfg),
	}

	start := time.Now()
	resp, err := p.client.CreateTranscription(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, classifyOpenAIError(err, ctx)
	}

	segments := make([]job.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, job.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	if len(segments) == 0 && resp.Text != "" {
		// Short clips sometimes come back without segment detail.
		segments = append(segments, job.Segment{
			Start: 0,
			End:   cfg.ChunkDuration,
			Text:  resp.Text,
		})
	}
	segments = providers.SanitizeSegments(segments, cfg.ChunkDuration)

	log.Info().
		Int("segments", len(segments)).
		Dur("latency", latency).
		Msg("Chunk transcribed")

	return &providers.Result{
		Segments: segments,
		Metadata: job.ProviderMetadata{
			LatencyMS:   latency.Milliseconds(),
			Model:       p.model,
			RawResponse: providers.TruncateRaw(resp.Text),
		},
	}, nil
}

// whisperPrompt folds the user prompt and continuation context into the
// API's single prompt field. Whisper conditions on the prompt's trailing
// text, so context goes last.
func whisperPrompt(cfg providers.ChunkConfig) string {
	switch {
	case cfg.Prompt != "" && cfg.ContextText != "":
		return fmt.Sprintf("%s\n%s", cfg.Prompt, cfg.ContextText)
	case cfg.ContextText != "":
		return cfg.ContextText
	default:
		return cfg.Prompt
	}
}

func classifyOpenAIError(err error, ctx context.Context) error {
	if ctx.Err() != nil {
		return stterr.Wrap(stterr.KindTimeout, Name, "request deadline exceeded", ctx.Err())
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return stterr.FromHTTPStatus(apiErr.HTTPStatusCode, Name, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return stterr.FromHTTPStatus(reqErr.HTTPStatusCode, Name, reqErr.Error())
	}

	return stterr.Wrap(stterr.KindProviderUnavailable, Name, "request failed", err)
}
