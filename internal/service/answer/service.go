// Package answer resolves questions through the cache tiers and, on a full
// miss, streams a generated answer from the inference backend.
package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/observability/metrics"
	"ai-live-hints-service/internal/service/cache"
	"ai-live-hints-service/internal/service/classify"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/rag"
)

var (
	// ErrInferenceTimeout means the answer took longer than the inference timeout.
	ErrInferenceTimeout = errors.New("inference timed out, try again")
	// ErrInferenceBackendDown means the inference server could not be reached.
	ErrInferenceBackendDown = errors.New("inference backend is not running")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
)

// Answer sources.
const (
	SourcePrecomputed = "precomputed"
	SourceExact       = "exact"
	SourceSemantic    = "semantic"
	SourceGenerated   = "generated"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultKeepAlive = "-1"
)

// PrecomputedTier is the curated answer store.
type PrecomputedTier interface {
	Lookup(ctx context.Context, question string) (precomputed.Match, bool)
}

// ExactTier is the exact-key answer cache.
type ExactTier interface {
	Get(question string, history []string) (string, bool)
	Put(question string, history []string, answer string)
	Clear()
}

// SemanticTier is the embedding-similarity answer cache.
type SemanticTier interface {
	Lookup(ctx context.Context, question string, history []string) (cache.Hit, bool)
	Put(ctx context.Context, question string, history []string, answer string)
	Clear()
}

// Assembler builds the prompt context for a generated answer.
type Assembler interface {
	Assemble(ctx context.Context, req rag.Request) rag.Context
}

// Consolidator remembers what a question was about.
type Consolidator interface {
	Consolidate(ctx context.Context, question string) error
}

// Deps are the collaborators of a Service. Only Inferrer is required.
type Deps struct {
	Precomputed PrecomputedTier
	Exact       ExactTier
	Semantic    SemanticTier
	Assembler   Assembler
	Inferrer    llm.Inferrer
	Memory      Consolidator
	// OnAnswer, if set, is called after every answered question.
	OnAnswer func(req Request, res Result)
}

// Config tunes generation.
type Config struct {
	Timeout   time.Duration
	KeepAlive string
}

// DefaultConfig returns the standard generation settings.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, KeepAlive: DefaultKeepAlive}
}

// Request is one question.
type Request struct {
	Question string
	History  []string
	Profile  string
}

// Result is a complete answer.
type Result struct {
	Text     string
	Source   string
	Category classify.Category
	Latency  time.Duration
	Degraded bool
}

// Cached reports whether the answer came from a tier rather than inference.
func (r Result) Cached() bool {
	return r.Source != SourceGenerated
}

// Chunk is one piece of a streamed answer. The last chunk on a channel
// either has Done set, with Result holding the whole answer, or carries Err.
type Chunk struct {
	Text   string
	Done   bool
	Result Result
	Err    error
}

// Service answers questions. Safe for concurrent use; concurrent answers
// are independent and their cache writes are last-write-wins.
type Service struct {
	deps    Deps
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a Service.
func New(deps Deps, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Service{
		deps:    deps,
		cfg:     cfg,
		now:     time.Now,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithComponent("answer"),
	}
}

// GetAnswer returns the complete answer for a question.
func (s *Service) GetAnswer(ctx context.Context, req Request) (Result, error) {
	ch, err := s.Stream(ctx, req)
	if err != nil {
		return Result{}, err
	}

	var text strings.Builder
	for c := range ch {
		if c.Err != nil {
			return Result{}, c.Err
		}
		text.WriteString(c.Text)
		if c.Done {
			res := c.Result
			res.Text = text.String()
			return res, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{}, fmt.Errorf("%w: %w", ErrInferenceBackendDown, io.ErrUnexpectedEOF)
}

// Stream resolves a question. Cached answers arrive as one text chunk
// followed by the terminal chunk; generated answers arrive as they are
// produced.
func (s *Service) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	start := s.now()
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, ErrEmptyQuestion
	}

	if res, ok := s.lookup(ctx, req); ok {
		res.Latency = s.now().Sub(start)
		s.finish(req, res)

		out := make(chan Chunk, 2)
		out <- Chunk{Text: res.Text}
		out <- Chunk{Done: true, Result: res}
		close(out)
		return out, nil
	}

	return s.generate(ctx, req, start)
}

// lookup walks the tiers in order and stops at the first hit.
func (s *Service) lookup(ctx context.Context, req Request) (Result, bool) {
	if s.deps.Precomputed != nil {
		t := s.now()
		m, ok := s.deps.Precomputed.Lookup(ctx, req.Question)
		s.metrics.RecordCacheLookup(SourcePrecomputed, ok, s.now().Sub(t).Seconds())
		if ok {
			s.log.Info().Str("id", m.ID).Float64("similarity", m.Similarity).Msg("Precomputed answer hit")
			return Result{Text: m.Answer.Answer, Source: SourcePrecomputed, Category: classify.Category(m.Category)}, true
		}
	}

	if s.deps.Exact != nil {
		t := s.now()
		text, ok := s.deps.Exact.Get(req.Question, req.History)
		s.metrics.RecordCacheLookup(SourceExact, ok, s.now().Sub(t).Seconds())
		if ok {
			s.log.Info().Msg("Exact cache hit")
			return Result{Text: text, Source: SourceExact}, true
		}
	}

	if s.deps.Semantic != nil {
		t := s.now()
		hit, ok := s.deps.Semantic.Lookup(ctx, req.Question, req.History)
		s.metrics.RecordCacheLookup(SourceSemantic, ok, s.now().Sub(t).Seconds())
		if ok {
			s.log.Info().
				Float64("similarity", hit.Similarity).
				Bool("fallback", hit.Fallback).
				Msg("Semantic cache hit")
			return Result{Text: hit.Answer, Source: SourceSemantic}, true
		}
	}

	return Result{}, false
}

func (s *Service) generate(ctx context.Context, req Request, start time.Time) (<-chan Chunk, error) {
	if s.deps.Inferrer == nil {
		return nil, ErrInferenceBackendDown
	}

	category := classify.Classify(req.Question)
	budget := classify.BudgetFor(category)
	maxTokens, temperature := llm.ClampBudget(budget.MaxTokens, budget.Temperature)

	var rc rag.Context
	if s.deps.Assembler != nil {
		rc = s.deps.Assembler.Assemble(ctx, rag.Request{
			Question: req.Question,
			History:  req.History,
			Category: category,
			Profile:  req.Profile,
		})
	} else {
		rc.Messages = []llm.Message{{Role: llm.RoleUser, Content: req.Question}}
	}

	s.metrics.RecordInference(string(category))
	s.log.Info().
		Str("category", string(category)).
		Str("complexity", string(rc.Complexity)).
		Int("messages", len(rc.Messages)).
		Int("max_tokens", maxTokens).
		Float64("temperature", temperature).
		Bool("degraded", rc.Degraded).
		Msg("Generating answer")

	inferCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	in, err := s.deps.Inferrer.Infer(inferCtx, llm.Request{
		Messages:    rc.Messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		KeepAlive:   s.cfg.KeepAlive,
	})
	if err != nil {
		err = s.classifyErr(inferCtx, err)
		cancel()
		return nil, err
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		defer cancel()

		var (
			text      strings.Builder
			firstText time.Time
		)
		for c := range in {
			if c.Err != nil {
				s.emit(ctx, out, Chunk{Err: s.classifyErr(inferCtx, c.Err)})
				return
			}
			if c.Text != "" {
				if firstText.IsZero() {
					firstText = s.now()
				}
				text.WriteString(c.Text)
				if !s.emit(ctx, out, Chunk{Text: c.Text}) {
					return
				}
			}
			if c.Done {
				res := Result{
					Text:     text.String(),
					Source:   SourceGenerated,
					Category: category,
					Latency:  s.now().Sub(start),
					Degraded: rc.Degraded,
				}
				ttft := res.Latency
				if !firstText.IsZero() {
					ttft = firstText.Sub(start)
				}
				s.metrics.RecordInferenceDone(ttft.Seconds(), res.Latency.Seconds())
				s.store(ctx, req, res.Text)
				s.finish(req, res)
				s.emit(ctx, out, Chunk{Done: true, Result: res})
				return
			}
		}

		// The backend closed the stream without a terminal chunk.
		err := inferCtx.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		s.emit(ctx, out, Chunk{Err: s.classifyErr(inferCtx, err)})
	}()
	return out, nil
}

// store writes a generated answer to the exact and semantic tiers and
// updates the session memory.
func (s *Service) store(ctx context.Context, req Request, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if s.deps.Exact != nil {
		s.deps.Exact.Put(req.Question, req.History, text)
		s.metrics.RecordCacheWrite(SourceExact)
	}
	if s.deps.Semantic != nil {
		s.deps.Semantic.Put(ctx, req.Question, req.History, text)
		s.metrics.RecordCacheWrite(SourceSemantic)
	}
	if s.deps.Memory != nil {
		if err := s.deps.Memory.Consolidate(ctx, req.Question); err != nil {
			s.log.Warn().Err(err).Msg("Failed to update session memory")
		}
	}
}

func (s *Service) finish(req Request, res Result) {
	s.metrics.RecordAnswer(res.Source, res.Latency.Seconds())
	s.log.Info().
		Str("source", res.Source).
		Int64("latency_ms", res.Latency.Milliseconds()).
		Msg("Answer ready")
	if s.deps.OnAnswer != nil {
		s.deps.OnAnswer(req, res)
	}
}

// classifyErr maps backend failures onto the answer error taxonomy.
func (s *Service) classifyErr(inferCtx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(inferCtx.Err(), context.DeadlineExceeded):
		s.metrics.RecordInferenceError("timeout")
		s.log.Warn().Dur("timeout", s.cfg.Timeout).Msg("Inference timed out")
		return fmt.Errorf("%w: %w", ErrInferenceTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, llm.ErrBackendUnavailable):
		s.metrics.RecordInferenceError("backend_down")
		s.log.Error().Err(err).Msg("Inference backend unavailable")
		return fmt.Errorf("%w: %w", ErrInferenceBackendDown, err)
	default:
		s.metrics.RecordInferenceError("stream")
		s.log.Error().Err(err).Msg("Inference stream failed")
		return fmt.Errorf("inference stream: %w", err)
	}
}

func (s *Service) emit(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// ClearCaches empties the exact and semantic tiers.
func (s *Service) ClearCaches() {
	if s.deps.Exact != nil {
		s.deps.Exact.Clear()
	}
	if s.deps.Semantic != nil {
		s.deps.Semantic.Clear()
	}
	s.log.Info().Msg("Answer caches cleared")
}
