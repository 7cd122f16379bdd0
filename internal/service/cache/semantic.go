package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/observability/metrics"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/vectorstore"
)

// Semantic cache defaults.
const (
	DefaultSemanticThreshold = 0.77
	DefaultSemanticSize      = 200
)

// SemanticEntry is one cached answer with its question embedding.
type SemanticEntry struct {
	Question    string
	Answer      string
	Embedding   []float64 // unit length; nil if the embedder was down at write time
	Fingerprint uint64
}

// Hit is a successful semantic lookup.
type Hit struct {
	Answer     string
	Similarity float64
	// Fallback is set when the hit came from string matching because
	// no embedding could be produced for the question.
	Fallback bool
}

// Semantic answers paraphrased questions by embedding similarity.
// Entries are evicted oldest-first; a repeated question replaces its
// entry in place. Thread-safe.
type Semantic struct {
	mu        sync.RWMutex
	entries   []SemanticEntry
	threshold float64
	size      int
	embedder  llm.Embedder
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewSemantic creates a semantic cache. A nil embedder means every lookup
// uses the string-match fallback.
func NewSemantic(embedder llm.Embedder, threshold float64, size int) *Semantic {
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}
	if size <= 0 {
		size = DefaultSemanticSize
	}
	return &Semantic{
		threshold: threshold,
		size:      size,
		embedder:  embedder,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("semantic-cache"),
	}
}

func (s *Semantic) embed(ctx context.Context, text string) ([]float64, error) {
	if s.embedder == nil {
		return nil, llm.ErrEmbeddingUnavailable
	}
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vectorstore.Unit(v), nil
}

// Lookup returns the most similar cached answer at or above the threshold.
// With history, only entries written under the same recent turns compete.
func (s *Semantic) Lookup(ctx context.Context, question string, history []string) (Hit, bool) {
	if s.Len() == 0 {
		return Hit{}, false
	}
	fp := Fingerprint(history)
	scoped := len(history) > 0

	q, err := s.embed(ctx, question)
	if err != nil {
		s.metrics.RecordSemanticFallback()
		s.logger.Warn().Err(err).Msg("Embedding unavailable, falling back to exact question match")
		return s.lookupExact(question, fp, scoped)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	bestSim := 0.0
	for i, e := range s.entries {
		if e.Embedding == nil || (scoped && e.Fingerprint != fp) {
			continue
		}
		if sim := vectorstore.Cosine(q, e.Embedding); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 || bestSim < s.threshold {
		return Hit{Similarity: bestSim}, false
	}
	s.logger.Debug().Float64("similarity", bestSim).Msg("Semantic cache hit")
	return Hit{Answer: s.entries[best].Answer, Similarity: bestSim}, true
}

func (s *Semantic) lookupExact(question string, fp uint64, scoped bool) (Hit, bool) {
	norm := Normalize(question)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if Normalize(e.Question) != norm {
			continue
		}
		if !scoped || e.Fingerprint == fp {
			return Hit{Answer: e.Answer, Similarity: 1, Fallback: true}, true
		}
	}
	return Hit{}, false
}

// Put stores an answer. A question already cached (case and surrounding
// whitespace ignored) is replaced in place. Empty answers are ignored.
func (s *Semantic) Put(ctx context.Context, question string, history []string, answer string) {
	if strings.TrimSpace(answer) == "" {
		return
	}
	vec, err := s.embed(ctx, question)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Caching answer without embedding")
	}
	entry := SemanticEntry{
		Question:    question,
		Answer:      answer,
		Embedding:   vec,
		Fingerprint: Fingerprint(history),
	}
	norm := Normalize(question)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if Normalize(s.entries[i].Question) == norm {
			s.entries[i] = entry
			return
		}
	}
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.size {
		s.entries = append(s.entries[:0:0], s.entries[len(s.entries)-s.size:]...)
	}
}

// Clear drops every entry.
func (s *Semantic) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of cached answers.
func (s *Semantic) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
