// Package audio connects an audio producer to a transcription buffer.
// Frames travel through a bounded queue to a consumer that feeds the
// buffer; due flushes are transcribed by a separate worker so the next
// segment keeps accumulating while the previous one is transcribed.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/events"
	"ai-live-hints-service/internal/models"
	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/observability/metrics"
	"ai-live-hints-service/internal/service/segment"
)

// ErrHandlerClosed is returned when audio arrives after Close.
var ErrHandlerClosed = errors.New("audio handler closed")

// Limits bounds the queues of a handler.
type Limits struct {
	FrameQueue   int           // frames waiting for the consumer
	FlushQueue   int           // cut segments waiting for transcription
	FlushTimeout time.Duration // per transcription call
}

// DefaultLimits returns the live-capture defaults.
func DefaultLimits() Limits {
	return Limits{
		FrameQueue:   256,
		FlushQueue:   4,
		FlushTimeout: 30 * time.Second,
	}
}

// SegmentCallback receives every non-empty transcribed segment.
type SegmentCallback func(ctx context.Context, seg *segment.Segment)

// Stats holds handler counters for observability.
type Stats struct {
	FramesReceived int
	FramesDropped  int
	Flushes        int
	Segments       int
	Errors         int
}

// Handler owns the buffer of one audio source.
type Handler struct {
	buffer    *segment.Buffer
	publisher *events.Publisher
	sessionId string
	source    string
	limits    Limits
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	frames  chan segment.Frame
	flushes chan *segment.Pending

	mu        sync.RWMutex
	closed    bool
	started   bool
	onSegment SegmentCallback

	statsMu sync.Mutex
	stats   Stats

	consumerDone chan struct{}
	workerDone   chan struct{}
}

// NewHandler creates a handler with default limits.
func NewHandler(buffer *segment.Buffer, publisher *events.Publisher, sessionId, source string) *Handler {
	return NewHandlerWithLimits(buffer, publisher, sessionId, source, DefaultLimits())
}

// NewHandlerWithLimits creates a handler with custom queue limits.
func NewHandlerWithLimits(buffer *segment.Buffer, publisher *events.Publisher, sessionId, source string, limits Limits) *Handler {
	def := DefaultLimits()
	if limits.FrameQueue <= 0 {
		limits.FrameQueue = def.FrameQueue
	}
	if limits.FlushQueue <= 0 {
		limits.FlushQueue = def.FlushQueue
	}
	if limits.FlushTimeout <= 0 {
		limits.FlushTimeout = def.FlushTimeout
	}
	if publisher == nil {
		publisher = events.New(nil)
	}
	return &Handler{
		buffer:       buffer,
		publisher:    publisher,
		sessionId:    sessionId,
		source:       source,
		limits:       limits,
		metrics:      metrics.DefaultMetrics,
		logger:       logging.WithSession(sessionId, source),
		frames:       make(chan segment.Frame, limits.FrameQueue),
		flushes:      make(chan *segment.Pending, limits.FlushQueue),
		consumerDone: make(chan struct{}),
		workerDone:   make(chan struct{}),
	}
}

// SetSegmentCallback sets the receiver of transcribed segments.
func (h *Handler) SetSegmentCallback(cb SegmentCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSegment = cb
}

// Start launches the consumer and the flush worker. The context bounds
// transcription calls; Close drains both goroutines.
func (h *Handler) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.consume()
	go h.flushWorker(ctx)
	h.logger.Info().Int("frameQueue", h.limits.FrameQueue).Msg("Audio handler started")
}

// Enqueue hands a frame to the consumer without blocking.
// Returns false when the frame was dropped because the queue is full.
func (h *Handler) Enqueue(frame segment.Frame) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false, ErrHandlerClosed
	}
	select {
	case h.frames <- frame:
		return true, nil
	default:
		h.metrics.RecordFrameDropped()
		h.count(func(s *Stats) { s.FramesDropped++ })
		return false, nil
	}
}

func (h *Handler) count(f func(*Stats)) {
	h.statsMu.Lock()
	f(&h.stats)
	h.statsMu.Unlock()
}

// OnAudioFrame appends a frame to the buffer and reports whether a flush
// was scheduled. The cut audio is transcribed by the flush worker.
func (h *Handler) OnAudioFrame(frame segment.Frame) bool {
	h.metrics.RecordAudioReceived(len(frame))
	h.count(func(s *Stats) { s.FramesReceived++ })

	if !h.buffer.AddAudio(frame) {
		return false
	}
	h.scheduleFlush()
	return true
}

func (h *Handler) scheduleFlush() {
	p := h.buffer.Take()
	if p == nil {
		return
	}
	h.count(func(s *Stats) { s.Flushes++ })
	h.flushes <- p
}

func (h *Handler) consume() {
	defer close(h.consumerDone)
	for frame := range h.frames {
		h.OnAudioFrame(frame)
	}
	// Whatever is left is one last segment.
	h.scheduleFlush()
	close(h.flushes)
}

func (h *Handler) flushWorker(ctx context.Context) {
	defer close(h.workerDone)
	for p := range h.flushes {
		h.transcribe(ctx, p)
	}
}

func (h *Handler) transcribe(ctx context.Context, p *segment.Pending) {
	tctx, cancel := context.WithTimeout(ctx, h.limits.FlushTimeout)
	defer cancel()

	seg, err := h.buffer.Transcribe(tctx, p)
	if err != nil {
		h.count(func(s *Stats) { s.Errors++ })
		h.metrics.RecordTranscriptionError(h.source)
		h.logger.Warn().Err(err).Msg("Segment transcription failed, segment dropped")
		return
	}
	if seg.Empty() {
		return
	}

	h.count(func(s *Stats) { s.Segments++ })
	h.mu.RLock()
	cb := h.onSegment
	h.mu.RUnlock()

	h.publish(ctx, seg)
	if cb != nil {
		cb(ctx, seg)
	}
}

func (h *Handler) publish(ctx context.Context, seg *segment.Segment) {
	ev := models.TranscriptSegment{
		EventType:    models.EventTypeTranscript,
		SessionID:    h.sessionId,
		Source:       h.source,
		Timestamp:    time.Now().UnixMilli(),
		SegmentID:    seg.ID,
		Text:         seg.Text,
		DurationMs:   seg.Duration.Milliseconds(),
		EndToEndMs:   seg.Latency.EndToEndMs,
		TranscribeMs: seg.Latency.TranscribeMs,
	}
	if err := h.publisher.PublishTranscript(ctx, h.sessionId, ev); err != nil {
		logger := logging.WithSegment(h.sessionId, h.source, seg.ID)
		logger.Warn().Err(err).Msg("Failed to publish transcript")
	}
}

// Reset drops buffered audio. Frames already queued still reach the buffer.
func (h *Handler) Reset() {
	h.buffer.Reset()
	h.logger.Debug().Msg("Audio buffer reset")
}

// Buffer returns the handler's buffer.
func (h *Handler) Buffer() *segment.Buffer {
	return h.buffer
}

// Stats returns a snapshot of the handler counters.
func (h *Handler) Stats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}

// Close stops accepting frames, flushes what is buffered and waits for the
// last transcription. Close on a handler that was never started only
// marks it closed.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	started := h.started
	close(h.frames)
	h.mu.Unlock()

	if started {
		<-h.consumerDone
		<-h.workerDone
	}
	st := h.Stats()
	h.logger.Info().
		Int("frames", st.FramesReceived).
		Int("dropped", st.FramesDropped).
		Int("segments", st.Segments).
		Msg("Audio handler closed")
	return nil
}
