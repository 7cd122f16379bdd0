// Package precomputed holds curated and learned question/answer pairs that
// are served without inference when a question is close enough to one of them.
package precomputed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/vectorstore"
	"ai-live-hints-service/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultInstantThreshold is the similarity at which a stored answer is
	// returned as-is.
	DefaultInstantThreshold = 0.88
	// DefaultContextThreshold is the lowest similarity offered as a
	// reference passage.
	DefaultContextThreshold = 0.70

	CategorySession = "session"
	CategoryGeneral = "general"

	bucket = "precomputed"
)

// ErrEmptyAnswer is returned when adding a pair with no question or answer.
var ErrEmptyAnswer = errors.New("question and answer are required")

// Answer is one stored question/answer pair.
type Answer struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Match is a stored answer with its similarity to a query.
type Match struct {
	Answer
	Similarity float64
}

// Config holds similarity thresholds.
type Config struct {
	InstantThreshold float64
	ContextThreshold float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		InstantThreshold: DefaultInstantThreshold,
		ContextThreshold: DefaultContextThreshold,
	}
}

// Store is the precomputed answer tier. Thread-safe.
type Store struct {
	mu       sync.RWMutex
	answers  map[string]Answer
	index    *vectorstore.Index
	search   vectorstore.Searcher
	embedder llm.Embedder
	backend  storage.Backend
	cfg      Config
	log      zerolog.Logger
}

// New creates an empty store. Call Open to load persisted answers.
func New(backend storage.Backend, embedder llm.Embedder, cfg Config) *Store {
	if cfg.InstantThreshold <= 0 {
		cfg.InstantThreshold = DefaultInstantThreshold
	}
	if cfg.ContextThreshold <= 0 {
		cfg.ContextThreshold = DefaultContextThreshold
	}
	index := vectorstore.NewIndex()
	return &Store{
		answers:  make(map[string]Answer),
		index:    index,
		search:   index,
		embedder: embedder,
		backend:  backend,
		cfg:      cfg,
		log:      logging.WithComponent("precomputed"),
	}
}

// Open loads persisted answers and indexes the ones that carry an
// embedding. The rest are embedded afterwards; ones that still cannot be
// embedded stay unindexed until Reindex.
func (s *Store) Open(ctx context.Context) error {
	records, err := s.backend.Load(ctx, bucket)
	if err != nil {
		return fmt.Errorf("load precomputed answers: %w", err)
	}

	s.mu.Lock()
	for id, raw := range records {
		var a Answer
		if err := json.Unmarshal(raw, &a); err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("Skipping unreadable precomputed answer")
			continue
		}
		a.ID = id
		s.answers[id] = a
		s.upsertLocked(a)
	}
	total := len(s.answers)
	s.mu.Unlock()

	s.Reindex(ctx)

	s.log.Info().
		Int("answers", total).
		Int("indexed", s.index.Len()).
		Msg("Precomputed answers loaded")
	return nil
}

// Reindex embeds answers that have no embedding yet and returns how many
// became searchable. The embedding calls run without the store lock, so
// lookups proceed while it works.
func (s *Store) Reindex(ctx context.Context) int {
	if s.embedder == nil {
		return 0
	}

	s.mu.RLock()
	var pending []Answer
	for _, a := range s.answers {
		if len(a.Embedding) == 0 {
			pending = append(pending, a)
		}
	}
	s.mu.RUnlock()

	embedded := make([]Answer, 0, len(pending))
	for _, a := range pending {
		vec, err := s.embedder.Embed(ctx, a.Question)
		if err != nil {
			s.log.Warn().Err(err).Str("id", a.ID).Msg("Precomputed answer left unindexed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		a.Embedding = vec
		if err := s.persist(ctx, a); err != nil {
			s.log.Warn().Err(err).Str("id", a.ID).Msg("Failed to persist embedding")
		}
		embedded = append(embedded, a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range embedded {
		current, ok := s.answers[a.ID]
		if !ok || len(current.Embedding) > 0 {
			// Removed or re-added with an embedding meanwhile.
			continue
		}
		s.answers[a.ID] = a
		if s.upsertLocked(a) {
			n++
		}
	}
	return n
}

func (s *Store) upsertLocked(a Answer) bool {
	if len(a.Embedding) == 0 {
		return false
	}
	if err := s.index.Upsert(a.ID, a.Embedding); err != nil {
		s.log.Warn().Err(err).Str("id", a.ID).Msg("Precomputed answer has wrong embedding size")
		return false
	}
	return true
}

func (s *Store) persist(ctx context.Context, a Answer) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, bucket, a.ID, raw); err != nil {
		return fmt.Errorf("persist precomputed answer %s: %w", a.ID, err)
	}
	return nil
}

// Add stores a pair. A missing id gets a random one, a missing category
// becomes general. If the embedding backend is down the pair is persisted
// but not searchable until Reindex.
func (s *Store) Add(ctx context.Context, a Answer) (Answer, error) {
	a.Question = strings.TrimSpace(a.Question)
	a.Answer = strings.TrimSpace(a.Answer)
	if a.Question == "" || a.Answer == "" {
		return Answer{}, ErrEmptyAnswer
	}
	if a.ID == "" {
		a.ID = "qa_" + uuid.NewString()
	}
	if a.Category == "" {
		a.Category = CategoryGeneral
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if len(a.Embedding) == 0 && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, a.Question)
		if err != nil {
			s.log.Warn().Err(err).Str("id", a.ID).Msg("Storing precomputed answer without embedding")
		} else {
			a.Embedding = vec
		}
	}

	if err := s.persist(ctx, a); err != nil {
		return Answer{}, err
	}

	s.mu.Lock()
	s.answers[a.ID] = a
	s.upsertLocked(a)
	s.mu.Unlock()

	s.log.Info().
		Str("id", a.ID).
		Str("category", a.Category).
		Str("question", preview(a.Question, 50)).
		Msg("Precomputed answer added")
	return a, nil
}

// Learn stores an answer produced during a session.
func (s *Store) Learn(ctx context.Context, question, answer string) (Answer, error) {
	return s.Add(ctx, Answer{Question: question, Answer: answer, Category: CategorySession})
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[id]
	return ok
}

// Len returns the number of stored answers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Search returns up to k stored answers ordered by similarity.
func (s *Store) Search(ctx context.Context, question string, k int) ([]Match, error) {
	if s.embedder == nil {
		return nil, llm.ErrEmbeddingUnavailable
	}
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	hits, err := s.search.NearestNeighbors(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		a, ok := s.answers[h.ID]
		if !ok {
			continue
		}
		out = append(out, Match{Answer: a, Similarity: h.Score})
	}
	return out, nil
}

// Lookup returns the closest stored answer when it reaches the instant
// threshold. Any failure is a miss.
func (s *Store) Lookup(ctx context.Context, question string) (Match, bool) {
	matches, err := s.Search(ctx, question, 1)
	if err != nil {
		s.log.Debug().Err(err).Msg("Precomputed lookup failed")
		return Match{}, false
	}
	if len(matches) == 0 || matches[0].Similarity < s.cfg.InstantThreshold {
		return Match{}, false
	}
	return matches[0], true
}

// ContextAnswers returns stored answers close enough to help but not close
// enough to serve directly.
func (s *Store) ContextAnswers(ctx context.Context, question string, k int) ([]Match, error) {
	matches, err := s.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if m.Similarity >= s.cfg.ContextThreshold && m.Similarity < s.cfg.InstantThreshold {
			out = append(out, m)
		}
	}
	return out, nil
}

// Clear removes every stored answer, persisted ones included.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx, bucket); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.answers {
		s.index.Delete(id)
	}
	s.answers = make(map[string]Answer)
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
