package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/config"
	"ai-live-hints-service/internal/events"
	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/schema"
	"ai-live-hints-service/internal/service/answer"
	"ai-live-hints-service/internal/service/audio"
	"ai-live-hints-service/internal/service/cache"
	"ai-live-hints-service/internal/service/knowledge"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/rag"
	"ai-live-hints-service/internal/service/segment"
	"ai-live-hints-service/internal/service/session"
	"ai-live-hints-service/internal/service/stt"
	"ai-live-hints-service/internal/storage"
)

// HealthChecker is implemented by backends that can be probed.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Publisher   *events.Publisher
	Validator   *schema.Validator
	Answers     *answer.Service
	Precomputed *precomputed.Store
	Corpus      *knowledge.Corpus
	Memory      *knowledge.Memory
	Session     *session.Manager

	backend     storage.Backend
	transcriber stt.Transcriber
	inference   HealthChecker
	segments    *segment.Generator
	closers     []func() error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:       cfg,
		Validator: schema.New(),
		segments:  segment.New(),
	}
	a.setupLogger()

	a.Logger.Info().
		Str("method", "New").
		Msg("Live hints service application created")
	return a
}

func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	lc.File = a.Cfg.Observability.LogFile
	logging.Init(lc)

	a.Logger = logging.WithComponent("application").With().
		Str("service", a.Cfg.Service.Name).
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", lc.Format).
		Msg("Logger setup completed")
}

// Start builds the backends and the answer pipeline. The inference and
// embedding backends are not contacted here; a missing backend degrades
// answering instead of failing startup.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().Str("method", "Start").Logger()
	a.StartupTime = time.Now().UTC()
	cfg := a.Cfg

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)

	transcriber, closeSTT, err := newTranscriber(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create %s transcriber: %w", cfg.STT.Provider, err)
	}
	a.transcriber = transcriber
	if closeSTT != nil {
		a.closers = append(a.closers, closeSTT)
	}

	inferrer, checker := newInferrer(cfg)
	a.inference = checker
	var embedder llm.Embedder = llm.NewMemoEmbedder(newEmbedder(cfg), cfg.Cache.EmbeddingMemo)

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicAnswer:     cfg.Kafka.TopicAnswer,
		Principal:       cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	a.Precomputed = precomputed.New(backend, embedder, precomputed.Config{
		InstantThreshold: cfg.Answers.InstantThreshold,
		ContextThreshold: cfg.Answers.ContextThreshold,
	})
	if err := a.Precomputed.Open(ctx); err != nil {
		return fmt.Errorf("open precomputed answers: %w", err)
	}
	if n, err := a.Precomputed.LoadPreparedFile(ctx, cfg.Answers.PreparedFile); err != nil {
		startLogger.Warn().Err(err).Str("file", cfg.Answers.PreparedFile).Msg("Prepared answers not loaded")
	} else if n > 0 {
		startLogger.Info().Int("added", n).Msg("Prepared answers loaded")
	}

	a.Corpus = knowledge.NewCorpus(embedder, cfg.RAG.RelevanceFloor)
	if n, err := a.Corpus.LoadFile(ctx, cfg.RAG.UserContextFile); err != nil {
		startLogger.Warn().Err(err).Msg("Knowledge corpus degraded")
	} else {
		startLogger.Info().Int("chunks", n).Msg("Knowledge corpus loaded")
	}

	a.Memory = knowledge.NewMemory(backend)
	if err := a.Memory.Open(ctx); err != nil {
		startLogger.Warn().Err(err).Msg("Session memory not restored")
	}

	assembler := rag.NewAssembler(a.Corpus, a.Precomputed, a.Memory, rag.Config{
		TopK:            cfg.RAG.TopK,
		ReferenceK:      cfg.RAG.ReferenceK,
		MaxContextChars: cfg.RAG.MaxContextChars,
	})

	a.Answers = answer.New(answer.Deps{
		Precomputed: a.Precomputed,
		Exact:       cache.NewExact(cfg.Cache.ExactSize),
		Semantic:    cache.NewSemantic(embedder, cfg.Cache.SemanticThreshold, cfg.Cache.SemanticSize),
		Assembler:   assembler,
		Inferrer:    inferrer,
		Memory:      a.Memory,
	}, answer.Config{
		Timeout:   cfg.LLM.Timeout,
		KeepAlive: cfg.LLM.KeepAlive,
	})

	a.Session = session.NewManager(cfg.Session.ID, a.Answers, a.Memory, a.Publisher, session.Config{
		Profile:       cfg.Session.Profile,
		MaxHistory:    cfg.Session.MaxHistory,
		AnswerSources: cfg.Session.AnswerSources,
	})

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("stt", cfg.STT.Provider).
		Str("llm", cfg.LLM.Provider).
		Str("store", cfg.Store.Backend).
		Int("precomputed", a.Precomputed.Len()).
		Msg("Live hints service starting")
	return nil
}

// BufferConfig returns the transcription buffer settings.
func (a *Application) BufferConfig() segment.BufferConfig {
	b := a.Cfg.Buffer
	return segment.BufferConfig{
		SampleRate:       a.Cfg.STT.SampleRateHz,
		MinChunk:         b.MinChunk,
		MaxBuffer:        b.MaxBuffer,
		SilenceThreshold: b.SilenceThreshold,
		SilenceTrigger:   b.SilenceTrigger,
		GraceWindow:      b.GraceWindow,
		LanguageHint:     a.Cfg.STT.LanguageCode,
	}
}

// OpenSource creates a buffer and handler for an audio source, attaches it
// to the session and starts it. The caller closes it with Session.Release.
func (a *Application) OpenSource(ctx context.Context, source string) *audio.Handler {
	buf := segment.NewBuffer(a.segments, a.Session.ID(), source, a.transcriber, a.BufferConfig())
	h := audio.NewHandlerWithLimits(buf, a.Publisher, a.Session.ID(), source, audio.Limits{
		FrameQueue:   a.Cfg.Buffer.FrameQueue,
		FlushQueue:   a.Cfg.Buffer.FlushQueue,
		FlushTimeout: a.Cfg.Buffer.FlushTimeout,
	})
	a.Session.Attach(source, h)
	h.Start(ctx)
	return h
}

// Ready reports whether the inference backend answers its health probe.
// Once it does, answers stored while embeddings were unavailable are indexed.
func (a *Application) Ready(ctx context.Context) error {
	if a.inference != nil {
		if err := a.inference.Health(ctx); err != nil {
			return err
		}
	}
	if a.Precomputed != nil {
		if n := a.Precomputed.Reindex(ctx); n > 0 {
			a.Logger.Info().Int("indexed", n).Msg("Precomputed answers reindexed")
		}
	}
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().Str("method", "Shutdown").Logger()
	shutdownLogger.Info().Msg("Live hints service shutting down")

	if a.Session != nil {
		a.Session.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Close failed")
		}
	}
}
