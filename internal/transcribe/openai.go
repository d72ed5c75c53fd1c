package transcribe

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures the hosted Whisper API (or any compatible
// endpoint through BaseURL).
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // default: "https://api.openai.com/v1"
	Model   string // default: "whisper-1"
}

// openAIBackend requests verbose_json so segment timings come back with the
// text.
type openAIBackend struct {
	name     string
	client   *openai.Client
	model    string
	language string
}

// NewOpenAIBackend talks to the OpenAI transcription endpoint.
func NewOpenAIBackend(opts OpenAIOptions, language string) Backend {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &openAIBackend{
		name:     "openai-whisper",
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
	}
}

// NewLocalBackend points the same client at a local OpenAI-compatible
// whisper server (whisper.cpp server, faster-whisper-server). The server
// holds the model in memory; the size is sent as the model name.
// Start whisper.cpp with: ./server -m models/ggml-base.bin --port 8178
func NewLocalBackend(baseURL string, size ModelSize, language string) Backend {
	if baseURL == "" {
		baseURL = "http://localhost:8178/v1"
	}
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &openAIBackend{
		name:     "local-whisper",
		client:   openai.NewClientWithConfig(cfg),
		model:    string(size),
		language: language,
	}
}

func (o *openAIBackend) Name() string { return o.name }

func (o *openAIBackend) Close() error { return nil }

func (o *openAIBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: o.language,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Model:    o.model,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	for _, s := range resp.Segments {
		res.Segments = append(res.Segments, Segment{
			ID:       s.ID,
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     strings.TrimSpace(s.Text),
		})
	}
	return res, nil
}
