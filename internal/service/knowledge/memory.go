package knowledge

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxTopics bounds the remembered topic list.
const MaxTopics = 20

const (
	memoryBucket = "memory"
	memoryID     = "session"
)

var topicKeywords = []string{
	"python", "django", "fastapi", "sql", "docker", "kubernetes",
	"react", "javascript", "typescript", "aws", "git", "ci/cd",
	"rest", "api", "база данных", "тестирование", "архитектура",
}

type memoryRecord struct {
	DiscussedTopics []string  `json:"discussedTopics"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// Memory remembers which topics came up in answered questions.
// A nil backend keeps it in memory only.
type Memory struct {
	mu      sync.Mutex
	topics  []string
	updated time.Time
	backend storage.Backend
	log     zerolog.Logger
}

// NewMemory creates an empty memory.
func NewMemory(backend storage.Backend) *Memory {
	return &Memory{
		backend: backend,
		log:     logging.WithComponent("memory"),
	}
}

// Open loads the persisted topics.
func (m *Memory) Open(ctx context.Context) error {
	if m.backend == nil {
		return nil
	}
	records, err := m.backend.Load(ctx, memoryBucket)
	if err != nil {
		return fmt.Errorf("load session memory: %w", err)
	}
	raw, ok := records[memoryID]
	if !ok {
		return nil
	}

	var rec memoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		m.log.Warn().Err(err).Msg("Ignoring unreadable session memory")
		return nil
	}

	m.mu.Lock()
	m.topics = rec.DiscussedTopics
	m.updated = rec.LastUpdated
	m.mu.Unlock()

	m.log.Info().Int("topics", len(rec.DiscussedTopics)).Msg("Session memory loaded")
	return nil
}

// Consolidate records the topics mentioned in question.
func (m *Memory) Consolidate(ctx context.Context, question string) error {
	q := strings.ToLower(question)

	m.mu.Lock()
	changed := false
	for _, kw := range topicKeywords {
		if strings.Contains(q, kw) && !slices.Contains(m.topics, kw) {
			m.topics = append(m.topics, kw)
			changed = true
		}
	}
	if len(m.topics) > MaxTopics {
		m.topics = append([]string(nil), m.topics[len(m.topics)-MaxTopics:]...)
	}
	m.updated = time.Now().UTC()
	rec := memoryRecord{DiscussedTopics: append([]string(nil), m.topics...), LastUpdated: m.updated}
	m.mu.Unlock()

	if !changed || m.backend == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := m.backend.Put(ctx, memoryBucket, memoryID, raw); err != nil {
		return fmt.Errorf("save session memory: %w", err)
	}
	return nil
}

// Topics returns every remembered topic, oldest first.
func (m *Memory) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

// Recent returns the last n topics.
func (m *Memory) Recent(n int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || len(m.topics) == 0 {
		return nil
	}
	start := max(0, len(m.topics)-n)
	return append([]string(nil), m.topics[start:]...)
}

// Clear forgets every topic, persisted ones included.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.topics = nil
	m.updated = time.Time{}
	m.mu.Unlock()

	if m.backend == nil {
		return nil
	}
	return m.backend.Clear(ctx, memoryBucket)
}
