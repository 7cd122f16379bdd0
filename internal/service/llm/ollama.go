package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
)

const defaultOllamaURL = "http://127.0.0.1:11434"

// OllamaConfig holds Ollama connection settings.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	EmbedModel string
	TopP       float64
	Timeout    time.Duration // connect + headers; streaming is bounded by ctx
}

// Ollama talks to a local Ollama server through its official API client.
type Ollama struct {
	cfg    OllamaConfig
	client *api.Client
	logger zerolog.Logger
}

// NewOllama creates an Ollama client.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.TopP == 0 {
		cfg.TopP = 0.9
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := logging.WithComponent("ollama")

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		logger.Warn().Str("base_url", cfg.BaseURL).Msg("Invalid Ollama URL, using default")
		base, _ = url.Parse(defaultOllamaURL)
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}
	return &Ollama{
		cfg:    cfg,
		client: api.NewClient(base, httpClient),
		logger: logger,
	}
}

// Infer streams a chat completion from /api/chat.
//
// It returns once the first response line arrives so that an unreachable
// server surfaces as an error from Infer rather than on the channel.
func (o *Ollama) Infer(ctx context.Context, req Request) (<-chan Chunk, error) {
	maxTokens, temperature := ClampBudget(req.MaxTokens, req.Temperature)
	stream := true
	chatReq := &api.ChatRequest{
		Model:     o.cfg.Model,
		Messages:  toOllamaMessages(req.Messages),
		Stream:    &stream,
		KeepAlive: parseKeepAlive(req.KeepAlive),
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
			"top_p":       o.cfg.TopP,
		},
	}

	out := make(chan Chunk)
	started := make(chan error, 1)
	go func() {
		defer close(out)

		began, done := false, false
		err := o.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
			if !began {
				began = true
				started <- nil
			}
			if r.Message.Content != "" {
				if !send(ctx, out, Chunk{Text: r.Message.Content}) {
					return ctx.Err()
				}
			}
			if r.Done {
				done = true
			}
			return nil
		})

		if !began {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			started <- o.backendError(ctx, err)
			return
		}
		switch {
		case err != nil:
			send(ctx, out, Chunk{Err: o.backendError(ctx, err)})
		case !done:
			send(ctx, out, Chunk{Err: io.ErrUnexpectedEOF})
		default:
			send(ctx, out, Chunk{Done: true})
		}
	}()

	select {
	case err := <-started:
		if err != nil {
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Embed returns the embedding of text from /api/embed.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.cfg.EmbedModel, Input: text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEmbeddingUnavailable)
	}
	return resp.Embeddings[0], nil
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Details    struct {
		Family        string `json:"family"`
		ParameterSize string `json:"parameter_size"`
	} `json:"details"`
}

// ListModels returns the models reported by /api/tags.
func (o *Ollama) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := o.client.List(ctx)
	if err != nil {
		return nil, o.backendError(ctx, err)
	}
	models := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		info := ModelInfo{Name: m.Name, Size: m.Size, ModifiedAt: m.ModifiedAt}
		info.Details.Family = m.Details.Family
		info.Details.ParameterSize = m.Details.ParameterSize
		models = append(models, info)
	}
	return models, nil
}

// Health checks that the Ollama server answers.
func (o *Ollama) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := o.ListModels(ctx)
	return err
}

// backendError passes context errors through and marks everything else as
// the backend being unavailable.
func (o *Ollama) backendError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	var status api.StatusError
	if errors.As(err, &status) {
		o.logger.Warn().Int("status", status.StatusCode).Str("error", status.ErrorMessage).Msg("Ollama request rejected")
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

func toOllamaMessages(msgs []Message) []api.Message {
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// parseKeepAlive converts a keep_alive value ("5m", "-1m", "-1", "300") to
// the client's duration. Bare numbers are seconds and any negative value
// keeps the model loaded indefinitely.
func parseKeepAlive(s string) *api.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return &api.Duration{Duration: time.Duration(secs * float64(time.Second))}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil
	}
	return &api.Duration{Duration: d}
}
