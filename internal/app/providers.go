package app

import (
	"context"
	"fmt"
	"strings"

	"ai-live-hints-service/internal/config"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/stt"
	"ai-live-hints-service/internal/service/stt/google"
	"ai-live-hints-service/internal/service/stt/mock"
	"ai-live-hints-service/internal/service/stt/whisper"
	"ai-live-hints-service/internal/storage"
)

func newBackend(ctx context.Context, cfg *config.Configuration) (storage.Backend, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "redis":
		return storage.NewRedis(ctx, storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case "file", "":
		return storage.NewFile(cfg.Store.Dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newTranscriber returns the configured STT backend and, when it holds a
// connection, its close function.
func newTranscriber(ctx context.Context, cfg *config.Configuration) (stt.Transcriber, func() error, error) {
	switch strings.ToLower(cfg.STT.Provider) {
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.STT.LanguageCode
		gc.SampleRateHz = int32(cfg.STT.SampleRateHz)
		gc.AudioEncoding = cfg.STT.AudioEncoding
		if cfg.STT.Model != "" {
			gc.Model = cfg.STT.Model
		}
		t, err := google.New(ctx, gc)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	case "whisper":
		wc := whisper.DefaultConfig()
		wc.BaseURL = cfg.STT.BaseURL
		wc.APIKey = cfg.STT.APIKey
		wc.Language = languageOf(cfg.STT.LanguageCode)
		if cfg.STT.Model != "" {
			wc.Model = cfg.STT.Model
		}
		return whisper.New(wc), nil, nil
	case "mock", "":
		return mock.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}
}

// languageOf turns a BCP-47 code such as "en-US" into the ISO-639-1 code
// whisper expects.
func languageOf(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}

// newInferrer returns the inference backend and its health probe, if any.
func newInferrer(cfg *config.Configuration) (llm.Inferrer, HealthChecker) {
	if strings.ToLower(cfg.LLM.Provider) == "openai" {
		return llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		}), nil
	}
	o := llm.NewOllama(llm.OllamaConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	return o, o
}

func newEmbedder(cfg *config.Configuration) llm.Embedder {
	if strings.ToLower(cfg.Embedding.Provider) == "openai" {
		return llm.NewOpenAI(llm.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			EmbedModel: cfg.Embedding.Model,
		})
	}
	return llm.NewOllama(llm.OllamaConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		EmbedModel: cfg.Embedding.Model,
	})
}
