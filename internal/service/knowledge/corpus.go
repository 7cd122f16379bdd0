package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/vectorstore"
)

// ErrCorpusUnavailable is returned when the corpus cannot be searched.
var ErrCorpusUnavailable = errors.New("knowledge corpus unavailable")

const (
	// SourceProfile marks chunks taken from the speaker's profile text.
	SourceProfile = "profile"

	DefaultRelevanceFloor = 0.3
	maxCandidates         = 10

	vectorWeight  = 0.7
	keywordWeight = 0.3
)

// Passage is one retrieved chunk.
type Passage struct {
	ID     string
	Text   string
	Source string
	Score  float64
}

type chunk struct {
	text   string
	source string
}

// Corpus is an embedded, searchable set of text chunks.
type Corpus struct {
	mu       sync.RWMutex
	chunks   map[string]chunk
	index    *vectorstore.Index
	search   vectorstore.Searcher
	embedder llm.Embedder
	profile  string
	floor    float64
	log      zerolog.Logger
}

// NewCorpus creates an empty corpus. floor <= 0 uses DefaultRelevanceFloor.
func NewCorpus(embedder llm.Embedder, floor float64) *Corpus {
	if floor <= 0 {
		floor = DefaultRelevanceFloor
	}
	index := vectorstore.NewIndex()
	return &Corpus{
		chunks:   make(map[string]chunk),
		index:    index,
		search:   index,
		embedder: embedder,
		floor:    floor,
		log:      logging.WithComponent("knowledge"),
	}
}

// Load replaces every chunk of source with chunks of text. It returns the
// number of chunks indexed; chunks that could not be embedded are skipped
// and reported through the error.
func (c *Corpus) Load(ctx context.Context, source, text string) (int, error) {
	pieces := SmartChunk(text, DefaultChunkSize, DefaultChunkOverlap)
	hash := xxhash.Sum64String(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, ch := range c.chunks {
		if ch.source == source {
			c.index.Delete(id)
			delete(c.chunks, id)
		}
	}
	if source == SourceProfile {
		c.profile = strings.TrimSpace(text)
	}
	if c.embedder == nil {
		return 0, fmt.Errorf("%w: no embedder", ErrCorpusUnavailable)
	}

	indexed := 0
	var errs []error
	for i, piece := range pieces {
		id := fmt.Sprintf("%s_%016x_%d", source, hash, i)
		vec, err := c.embedder.Embed(ctx, piece)
		if err == nil {
			err = c.index.Upsert(id, vec)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.chunks[id] = chunk{text: piece, source: source}
		indexed++
	}

	c.log.Info().
		Str("source", source).
		Int("chunks", len(pieces)).
		Int("indexed", indexed).
		Msg("Knowledge corpus loaded")

	if len(errs) > 0 {
		return indexed, fmt.Errorf("%w: %d of %d chunks not indexed: %w",
			ErrCorpusUnavailable, len(errs), len(pieces), errs[0])
	}
	return indexed, nil
}

// LoadFile loads the profile text at path. A missing file loads nothing.
func (c *Corpus) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Info().Str("path", path).Msg("No profile file")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.Load(ctx, SourceProfile, string(data))
}

// Profile returns the raw profile text.
func (c *Corpus) Profile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// Len returns the number of indexed chunks.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Retrieve returns up to topK passages ranked by a blend of vector
// similarity and keyword overlap. Candidates at or below the relevance
// floor are discarded before blending.
func (c *Corpus) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if topK <= 0 || c.Len() == 0 {
		return nil, nil
	}
	if c.embedder == nil {
		return nil, ErrCorpusUnavailable
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}
	hits, err := c.search.NearestNeighbors(ctx, vec, min(topK*2, maxCandidates))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}

	queryWords := wordSet(query)

	c.mu.RLock()
	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		ch, ok := c.chunks[h.ID]
		if !ok || h.Score <= c.floor {
			continue
		}
		passages = append(passages, Passage{
			ID:     h.ID,
			Text:   ch.text,
			Source: ch.source,
			Score:  h.Score*vectorWeight + overlap(queryWords, ch.text)*keywordWeight,
		})
	}
	c.mu.RUnlock()

	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// overlap is the share of query words that also appear in text.
func overlap(queryWords map[string]struct{}, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	doc := wordSet(text)
	shared := 0
	for w := range queryWords {
		if _, ok := doc[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(queryWords))
}
