// Package gemini implements the Google Gemini speech-to-text adapter.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/scribepipe/scribepipe/pkg/job"
	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/providers"
	"github.com/scribepipe/scribepipe/pkg/stterr"
)

const (
	// Name is the registry name of this provider.
	Name = "gemini"

	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
	defaultModel   = "gemini-2.5-pro"
)

func init() {
	providers.Register(Name, func(cfg providers.FactoryConfig) (providers.Provider, error) {
		return NewProvider(cfg)
	})
}

// Provider transcribes audio through the Gemini generateContent API with a
// structured JSON response schema.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewProvider creates a Gemini provider from factory configuration.
func NewProvider(cfg providers.FactoryConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, stterr.New(stterr.KindAuthError, Name, "gemini api key is not configured")
	}

	p := &Provider{
		apiKey:  cfg.APIKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		// Per-call deadlines come from the request context; the client
		// timeout is only a backstop.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	if cfg.BaseURL != "" {
		p.baseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		p.model = cfg.Model
	}
	return p, nil
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type generationConfig struct {
	Temperature      float32         `json:"temperature"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// transcriptSchema constrains the model to emit segments directly
// parseable into the pipeline's segment type.
var transcriptSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"segments": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"speaker": {"type": "string"},
					"start": {"type": "number"},
					"end": {"type": "number"},
					"text": {"type": "string"}
				},
				"required": ["start", "end", "text"]
			}
		}
	},
	"required": ["segments"]
}`)

type transcriptPayload struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements providers.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg providers.ChunkConfig) (*providers.Result, error) {
	log := logger.WithComponent("gemini").WithField("chunk_index", cfg.ChunkIndex)

	if len(audio) == 0 {
		return nil, stterr.New(stterr.KindInvalidAudio, Name, "empty audio data")
	}

	reqBody := &generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: providers.BuildPrompt(cfg)},
				{InlineData: &inlineData{
					MimeType: "audio/wav",
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
			ResponseSchema:   transcriptSchema,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", p.baseURL, apiVersion, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stterr.Wrap(stterr.KindTimeout, Name, "request deadline exceeded", ctx.Err())
		}
		return nil, stterr.Wrap(stterr.KindProviderUnavailable, Name, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()
	latency := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stterr.Wrap(stterr.KindProviderUnavailable, Name, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := stterr.FromHTTPStatus(resp.StatusCode, Name, apiErrorMessage(body))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				perr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		log.Warn().
			Int("status", resp.StatusCode).
			Str("kind", string(perr.Kind)).
			Msg("Gemini request rejected")
		return nil, perr
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, stterr.Wrap(stterr.KindUnknown, Name, "unparseable response body", err)
	}
	if genResp.Error != nil {
		return nil, stterr.FromHTTPStatus(genResp.Error.Code, Name, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 {
		return nil, stterr.New(stterr.KindUnknown, Name, "response contains no candidates")
	}

	candidate := genResp.Candidates[0]
	text := candidateText(candidate.Content)

	var transcript transcriptPayload
	if err := json.Unmarshal([]byte(text), &transcript); err != nil {
		return nil, stterr.Wrap(stterr.KindUnknown, Name,
			"model output is not valid transcript JSON", err)
	}

	segments := make([]job.Segment, 0, len(transcript.Segments))
	for _, s := range transcript.Segments {
		segments = append(segments, job.Segment{
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
			Speaker: s.Speaker,
		})
	}
	segments = providers.SanitizeSegments(segments, cfg.ChunkDuration)

	log.Info().
		Int("segments", len(segments)).
		Dur("latency", latency).
		Str("finish_reason", candidate.FinishReason).
		Msg("Chunk transcribed")

	return &providers.Result{
		Segments: segments,
		Metadata: job.ProviderMetadata{
			InputTokens:  genResp.UsageMetadata.PromptTokenCount,
			OutputTokens: genResp.UsageMetadata.CandidatesTokenCount,
			LatencyMS:    latency.Milliseconds(),
			FinishReason: candidate.FinishReason,
			Model:        p.model,
			RawResponse:  providers.TruncateRaw(text),
		},
	}, nil
}

func candidateText(c content) string {
	var buf bytes.Buffer
	for _, p := range c.Parts {
		buf.WriteString(p.Text)
	}
	return buf.String()
}

func apiErrorMessage(body []byte) string {
	var wrapper struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return providers.TruncateRaw(string(body))
}
