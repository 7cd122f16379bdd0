package segment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-live-hints-service/internal/observability/logging"
	"ai-live-hints-service/internal/observability/metrics"
	"ai-live-hints-service/internal/service/stt"
)

// Frame is a block of mono samples normalized to [-1, 1] at the
// buffer's sample rate.
type Frame []float32

// BufferConfig defines the speech-pause heuristic of a Buffer.
type BufferConfig struct {
	SampleRate       int
	MinChunk         time.Duration // shorter audio is never transcribed
	MaxBuffer        time.Duration // forced flush ceiling
	SilenceThreshold float64       // RMS below this is silence
	SilenceTrigger   time.Duration // pause that ends an utterance
	GraceWindow      time.Duration // trailing silence kept in the segment
	LanguageHint     string
}

// DefaultBufferConfig returns the live-speech defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		SampleRate:       16000,
		MinChunk:         250 * time.Millisecond,
		MaxBuffer:        4 * time.Second,
		SilenceThreshold: 0.015,
		SilenceTrigger:   800 * time.Millisecond,
		GraceWindow:      2 * time.Second,
	}
}

// Pending is audio cut from a Buffer and waiting for transcription.
type Pending struct {
	Samples    []float32
	FirstSound time.Time
	LastSound  time.Time
}

// Buffer accumulates frames for one audio source and decides when the
// accumulated speech is worth a transcription call.
// Thread-safe: one producer may append while a flush is transcribing.
//
// State transitions:
//
//	IDLE ──loud──→ ACCUMULATING ──quiet──→ TRAILING_SILENCE
//	                    ↑                        │
//	                    └─────────loud───────────┤
//	                                             │ pause ≥ trigger && len ≥ min
//	                                             │ or len ≥ max (any state)
//	                                             ↓
//	IDLE ←──transcription done────────────── FLUSHING
type Buffer struct {
	mu          sync.Mutex
	cfg         BufferConfig
	gen         *Generator
	sessionId   string
	transcriber stt.Transcriber
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time

	minSamples     int
	maxSamples     int
	triggerSamples int
	graceSamples   int

	frames        []Frame
	samples       int
	silentSamples int
	speaking      bool
	requested     bool
	state         State
	firstSound    time.Time
	lastSound     time.Time
}

// NewBuffer creates an idle buffer for one audio source of a session.
func NewBuffer(gen *Generator, sessionId, source string, transcriber stt.Transcriber, cfg BufferConfig) *Buffer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultBufferConfig().SampleRate
	}
	if gen == nil {
		gen = New()
	}
	return &Buffer{
		cfg:            cfg,
		gen:            gen,
		sessionId:      sessionId,
		transcriber:    transcriber,
		metrics:        metrics.DefaultMetrics,
		logger:         logging.WithSession(sessionId, source),
		now:            time.Now,
		minSamples:     toSamples(cfg.MinChunk, cfg.SampleRate),
		maxSamples:     toSamples(cfg.MaxBuffer, cfg.SampleRate),
		triggerSamples: toSamples(cfg.SilenceTrigger, cfg.SampleRate),
		graceSamples:   toSamples(cfg.GraceWindow, cfg.SampleRate),
		state:          StateIdle,
	}
}

// SetClock replaces the wall clock used for latency timestamps.
func (b *Buffer) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// AddAudio appends a frame and returns true once per segment when the
// caller should flush. Silence before any speech is discarded.
func (b *Buffer) AddAudio(frame Frame) bool {
	if len(frame) == 0 {
		return false
	}
	loud := RMS(frame) > b.cfg.SilenceThreshold

	b.mu.Lock()
	defer b.mu.Unlock()

	if loud {
		now := b.now()
		if b.samples == 0 {
			b.firstSound = now
		}
		b.lastSound = now
		b.speaking = true
		b.silentSamples = 0
		b.state = StateAccumulating
		b.appendLocked(frame)
	} else {
		if b.samples == 0 && !b.speaking {
			return false
		}
		b.state = StateTrailingSilence
		b.silentSamples += len(frame)
		if b.silentSamples <= b.graceSamples {
			b.appendLocked(frame)
		}
	}

	trigger := b.triggerLocked()
	if trigger == "" || b.requested {
		return false
	}
	b.requested = true
	b.metrics.RecordFlush(trigger)
	b.logger.Debug().
		Str("trigger", trigger).
		Dur("buffered", b.durationLocked()).
		Msg("Flush requested")
	return true
}

func (b *Buffer) triggerLocked() string {
	switch {
	case b.samples >= b.maxSamples:
		// Continuous speech keeps the speaking flag for the next segment.
		return TriggerMaxDuration
	case b.speaking && b.state == StateTrailingSilence &&
		b.silentSamples >= b.triggerSamples && b.samples >= b.minSamples:
		b.speaking = false
		return TriggerSilence
	case b.state == StateTrailingSilence && b.silentSamples > b.graceSamples:
		b.speaking = false
		return TriggerGrace
	}
	return ""
}

func (b *Buffer) appendLocked(frame Frame) {
	b.frames = append(b.frames, frame)
	b.samples += len(frame)
}

// Take atomically cuts the buffered audio and clears the buffer.
// Returns nil when nothing is buffered. The producer may keep appending
// frames for the next segment while the returned audio is transcribed.
func (b *Buffer) Take() *Pending {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requested = false
	b.silentSamples = 0
	if b.samples == 0 {
		b.state = StateIdle
		return nil
	}

	out := make([]float32, 0, b.samples)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	p := &Pending{
		Samples:    out,
		FirstSound: b.firstSound,
		LastSound:  b.lastSound,
	}
	b.frames = nil
	b.samples = 0
	b.state = StateFlushing
	return p
}

// Transcribe runs the transcriber over audio cut by Take.
// A nil result with a nil error means there was nothing worth transcribing.
func (b *Buffer) Transcribe(ctx context.Context, p *Pending) (*Segment, error) {
	if p == nil || len(p.Samples) == 0 {
		return nil, nil
	}
	defer b.finishFlush()

	duration := samplesToDuration(len(p.Samples), b.cfg.SampleRate)
	if len(p.Samples) < b.minSamples {
		b.metrics.RecordSegmentDropped("too_short")
		b.logger.Debug().Dur("duration", duration).Msg("Segment below minimum chunk, discarded")
		return nil, nil
	}

	b.mu.Lock()
	now := b.now
	b.mu.Unlock()

	start := now()
	text, err := b.transcriber.Transcribe(ctx, p.Samples, b.cfg.SampleRate, b.cfg.LanguageHint)
	done := now()
	if err != nil {
		b.metrics.RecordSegmentDropped("transcription_error")
		if !errors.Is(err, stt.ErrTranscriptionUnavailable) {
			err = fmt.Errorf("%w: %w", stt.ErrTranscriptionUnavailable, err)
		}
		return nil, err
	}

	seg := &Segment{
		ID:       b.gen.Next(b.sessionId),
		Text:     stt.CleanTranscript(text),
		Duration: duration,
		Latency: Latency{
			EndToEndMs:   done.Sub(p.LastSound).Milliseconds(),
			TranscribeMs: done.Sub(start).Milliseconds(),
		},
	}
	b.metrics.RecordSegment(duration.Seconds(), done.Sub(start).Seconds(), done.Sub(p.LastSound).Seconds())
	if seg.Text == "" {
		b.metrics.RecordSegmentDropped("empty_transcript")
	}

	b.logger.Debug().
		Str("segmentId", seg.ID).
		Dur("duration", duration).
		Int64("endToEndMs", seg.Latency.EndToEndMs).
		Int64("transcribeMs", seg.Latency.TranscribeMs).
		Msg("Segment transcribed")
	return seg, nil
}

// Flush cuts and transcribes the buffered audio in one step.
// Flushing an empty buffer is a no-op.
func (b *Buffer) Flush(ctx context.Context) (*Segment, error) {
	return b.Transcribe(ctx, b.Take())
}

func (b *Buffer) finishFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateFlushing {
		b.state = StateIdle
	}
}

// Reset drops all buffered audio and returns to IDLE.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.samples = 0
	b.silentSamples = 0
	b.speaking = false
	b.requested = false
	b.state = StateIdle
	b.firstSound = time.Time{}
	b.lastSound = time.Time{}
}

// State returns the current state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsSpeaking returns true while the speaker has not paused long enough.
func (b *Buffer) IsSpeaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speaking
}

// Duration returns the buffered audio duration.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.durationLocked()
}

func (b *Buffer) durationLocked() time.Duration {
	return samplesToDuration(b.samples, b.cfg.SampleRate)
}

// RMS returns the root mean square energy of a frame.
func RMS(frame Frame) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func toSamples(d time.Duration, rate int) int {
	return int(math.Round(d.Seconds() * float64(rate)))
}

func samplesToDuration(n, rate int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(rate)
}
