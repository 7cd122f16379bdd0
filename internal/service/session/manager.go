// Package session ties the audio handlers of one live session to the answer
// service: transcribed segments become dialogue turns, questions from the
// answering sources are resolved in the background, and ClearSession wipes
// all short-lived state.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/events"
	"ai-live-hints-service/internal/models"
	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/schema"
	"ai-live-hints-service/internal/service/answer"
	"ai-live-hints-service/internal/service/audio"
	"ai-live-hints-service/internal/service/segment"
)

const (
	DefaultMaxHistory = 50
	subscriberBuffer  = 16
)

// Answerer resolves questions.
type Answerer interface {
	GetAnswer(ctx context.Context, req answer.Request) (answer.Result, error)
	Stream(ctx context.Context, req answer.Request) (<-chan answer.Chunk, error)
	ClearCaches()
}

// MemoryClearer forgets what the session talked about.
type MemoryClearer interface {
	Clear(ctx context.Context) error
}

// Config tunes a Manager.
type Config struct {
	Profile    string
	MaxHistory int
	// AnswerSources lists the audio sources whose segments are answered
	// automatically, typically the remote side of a call.
	AnswerSources []string
}

// Manager owns the dialogue history and active audio handlers of a session.
type Manager struct {
	id        string
	answers   Answerer
	memory    MemoryClearer
	publisher *events.Publisher
	cfg       Config
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	history     []string
	handlers    map[string]*audio.Handler
	subscribers map[int]chan models.AnswerEvent
	nextSub     int
}

// NewManager creates a session. memory and publisher may be nil.
func NewManager(id string, answers Answerer, memory MemoryClearer, publisher *events.Publisher, cfg Config) *Manager {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if publisher == nil {
		publisher = events.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		id:          id,
		answers:     answers,
		memory:      memory,
		publisher:   publisher,
		cfg:         cfg,
		logger:      logging.WithComponent("session").With().Str("sessionId", id).Logger(),
		ctx:         ctx,
		cancel:      cancel,
		handlers:    make(map[string]*audio.Handler),
		subscribers: make(map[int]chan models.AnswerEvent),
	}
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.id
}

// Attach registers the handler of an audio source and routes its segments
// into the session. A handler already attached for the source is closed.
func (m *Manager) Attach(source string, h *audio.Handler) {
	h.SetSegmentCallback(func(ctx context.Context, seg *segment.Segment) {
		m.onSegment(source, seg)
	})

	m.mu.Lock()
	old := m.handlers[source]
	m.handlers[source] = h
	m.mu.Unlock()

	if old != nil && old != h {
		old.Close()
	}
	m.logger.Info().Str("source", source).Msg("Audio source attached")
}

// Detach closes and removes the handler of a source.
func (m *Manager) Detach(source string) {
	m.mu.Lock()
	h := m.handlers[source]
	delete(m.handlers, source)
	m.mu.Unlock()

	if h != nil {
		h.Close()
		m.logger.Info().Str("source", source).Msg("Audio source detached")
	}
}

// Release closes h and detaches it if it is still the handler of source.
// A newer handler attached for the same source is left alone.
func (m *Manager) Release(source string, h *audio.Handler) {
	m.mu.Lock()
	if m.handlers[source] == h {
		delete(m.handlers, source)
	}
	m.mu.Unlock()
	h.Close()
}

// Handler returns the handler of a source, if attached.
func (m *Manager) Handler(source string) (*audio.Handler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handlers[source]
	return h, ok
}

func (m *Manager) autoAnswers(source string) bool {
	return slices.Contains(m.cfg.AnswerSources, source)
}

func (m *Manager) onSegment(source string, seg *segment.Segment) {
	if !m.autoAnswers(source) || !schema.QuestionLongEnough(seg.Text) {
		m.AddTurn(seg.Text)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.Ask(m.ctx, Query{Question: seg.Text}); err != nil {
			logger := logging.WithSegment(m.id, source, seg.ID)
			logger.Warn().Err(err).Msg("Automatic answer failed")
		}
	}()
}

// AddTurn appends a dialogue turn, keeping at most MaxHistory turns.
func (m *Manager) AddTurn(text string) {
	if text == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, text)
	if over := len(m.history) - m.cfg.MaxHistory; over > 0 {
		m.history = append([]string(nil), m.history[over:]...)
	}
}

// History returns a copy of the dialogue turns, oldest first.
func (m *Manager) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Query is a question with optional overrides of the session context.
type Query struct {
	Question string
	History  []string // nil means the session history
	Profile  string   // empty means the session profile
}

func (m *Manager) request(q Query) answer.Request {
	req := answer.Request{Question: q.Question, History: q.History, Profile: q.Profile}
	if req.History == nil {
		req.History = m.History()
	}
	if req.Profile == "" {
		req.Profile = m.cfg.Profile
	}
	return req
}

// Ask answers a question in the context of the session history. The
// question becomes a dialogue turn once answered.
func (m *Manager) Ask(ctx context.Context, q Query) (answer.Result, error) {
	res, err := m.answers.GetAnswer(ctx, m.request(q))
	m.AddTurn(q.Question)
	if err != nil {
		return res, err
	}
	m.announce(ctx, q.Question, res)
	return res, nil
}

// Stream answers a question chunk by chunk. The terminal chunk is
// forwarded unchanged.
func (m *Manager) Stream(ctx context.Context, q Query) (<-chan answer.Chunk, error) {
	in, err := m.answers.Stream(ctx, m.request(q))
	if err != nil {
		return nil, err
	}
	question := q.Question
	m.AddTurn(question)

	out := make(chan answer.Chunk)
	go func() {
		defer close(out)
		for c := range in {
			if c.Done && c.Err == nil {
				m.announce(ctx, question, c.Result)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *Manager) announce(ctx context.Context, question string, res answer.Result) {
	ev := models.AnswerEvent{
		EventType: models.EventTypeAnswer,
		SessionID: m.id,
		Timestamp: time.Now().UnixMilli(),
		Question:  question,
		Answer:    res.Text,
		Source:    res.Source,
		Category:  string(res.Category),
		LatencyMs: res.Latency.Milliseconds(),
		Degraded:  res.Degraded,
	}
	if err := m.publisher.PublishAnswer(ctx, m.id, ev); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish answer")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscribers miss hints rather than stall answering.
		}
	}
}

// Subscribe returns a channel receiving every answer of the session and a
// function that ends the subscription.
func (m *Manager) Subscribe() (<-chan models.AnswerEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan models.AnswerEvent, subscriberBuffer)
	m.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subscribers[id]; ok {
				delete(m.subscribers, id)
				close(ch)
			}
		})
	}
}

// ClearSession wipes the exact and semantic caches, resets every active
// buffer, clears the dialogue history and forgets the discussed topics.
// It can be called at any time and never fails.
func (m *Manager) ClearSession() {
	if m.answers != nil {
		m.answers.ClearCaches()
	}

	m.mu.Lock()
	handlers := make([]*audio.Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.history = nil
	m.mu.Unlock()

	for _, h := range handlers {
		h.Reset()
	}

	if m.memory != nil {
		if err := m.memory.Clear(context.Background()); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to clear session memory")
		}
	}
	m.logger.Info().Int("buffers", len(handlers)).Msg("Session cleared")
}

// Close detaches every source and waits for background answers.
func (m *Manager) Close() {
	m.mu.Lock()
	handlers := m.handlers
	m.handlers = make(map[string]*audio.Handler)
	m.mu.Unlock()

	for _, h := range handlers {
		h.Close()
	}
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()
	m.logger.Info().Msg("Session closed")
}
