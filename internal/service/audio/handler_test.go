package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-live-hints-service/internal/events"
	"ai-live-hints-service/internal/service/segment"
	"ai-live-hints-service/internal/service/stt"
	"ai-live-hints-service/internal/service/stt/mock"
)

const rate = 16000

func loud(d time.Duration) segment.Frame {
	f := make(segment.Frame, int(d.Seconds()*rate))
	for i := range f {
		f[i] = 0.4
		if i%2 == 1 {
			f[i] = -0.4
		}
	}
	return f
}

func quiet(d time.Duration) segment.Frame {
	return make(segment.Frame, int(d.Seconds()*rate))
}

// segmentRecorder collects segments delivered by the handler
type segmentRecorder struct {
	mu   sync.Mutex
	segs []*segment.Segment
}

func (r *segmentRecorder) record(ctx context.Context, seg *segment.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, seg)
}

func (r *segmentRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segs)
}

func newTestHandler(tr stt.Transcriber, limits Limits) (*Handler, *segmentRecorder) {
	buf := segment.NewBuffer(segment.New(), "sess-1", "mic", tr, segment.DefaultBufferConfig())
	h := NewHandlerWithLimits(buf, events.New(&events.Config{Enabled: false}), "sess-1", "mic", limits)
	rec := &segmentRecorder{}
	h.SetSegmentCallback(rec.record)
	return h, rec
}

func TestHandler_OnAudioFrameReportsFlush(t *testing.T) {
	h, _ := newTestHandler(mock.New(), DefaultLimits())

	if h.OnAudioFrame(loud(time.Second)) {
		t.Fatal("speech alone should not flush")
	}
	if !h.OnAudioFrame(quiet(900 * time.Millisecond)) {
		t.Fatal("pause after speech should flush")
	}
	if len(h.flushes) != 1 {
		t.Errorf("expected one queued flush, got %d", len(h.flushes))
	}
	if h.Buffer().Duration() != 0 {
		t.Error("buffer should be empty after the cut")
	}
}

func TestHandler_SegmentDelivered(t *testing.T) {
	tr := mock.New(mock.WithUtterances("What is a goroutine?"))
	h, rec := newTestHandler(tr, DefaultLimits())
	h.Start(context.Background())

	for _, f := range []segment.Frame{loud(time.Second), quiet(900 * time.Millisecond)} {
		if ok, err := h.Enqueue(f); !ok || err != nil {
			t.Fatalf("enqueue failed: ok=%v err=%v", ok, err)
		}
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("expected 1 segment, got %d", rec.count())
	}
	if rec.segs[0].Text != "What is a goroutine?" {
		t.Errorf("unexpected text %q", rec.segs[0].Text)
	}
	if tr.Calls() != 1 {
		t.Errorf("expected 1 transcription call, got %d", tr.Calls())
	}
	st := h.Stats()
	if st.FramesReceived != 2 || st.Segments != 1 || st.Flushes != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestHandler_QueueFullDropsFrames(t *testing.T) {
	h, _ := newTestHandler(mock.New(), Limits{FrameQueue: 2})

	for i := 0; i < 2; i++ {
		if ok, _ := h.Enqueue(loud(10 * time.Millisecond)); !ok {
			t.Fatalf("frame %d should be queued", i)
		}
	}
	ok, err := h.Enqueue(loud(10 * time.Millisecond))
	if ok || err != nil {
		t.Fatalf("third frame should be dropped without error, ok=%v err=%v", ok, err)
	}
	if h.Stats().FramesDropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", h.Stats().FramesDropped)
	}
}

func TestHandler_EnqueueAfterClose(t *testing.T) {
	h, _ := newTestHandler(mock.New(), DefaultLimits())
	h.Close()

	if _, err := h.Enqueue(loud(10 * time.Millisecond)); !errors.Is(err, ErrHandlerClosed) {
		t.Errorf("expected ErrHandlerClosed, got %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestHandler_CloseFlushesRemainder(t *testing.T) {
	tr := mock.New()
	h, rec := newTestHandler(tr, DefaultLimits())
	h.Start(context.Background())

	h.Enqueue(loud(time.Second))
	h.Close()

	if tr.Calls() != 1 || rec.count() != 1 {
		t.Errorf("buffered speech should be transcribed on close, calls=%d segments=%d", tr.Calls(), rec.count())
	}
}

func TestHandler_CloseDropsTooShortRemainder(t *testing.T) {
	tr := mock.New()
	h, rec := newTestHandler(tr, DefaultLimits())
	h.Start(context.Background())

	h.Enqueue(loud(100 * time.Millisecond))
	h.Close()

	if tr.Calls() != 0 || rec.count() != 0 {
		t.Errorf("audio below the minimum chunk must not be transcribed, calls=%d", tr.Calls())
	}
}

func TestHandler_TranscriptionErrorDropsSegment(t *testing.T) {
	tr := mock.New(mock.WithError(errors.New("backend down")))
	h, rec := newTestHandler(tr, DefaultLimits())
	h.Start(context.Background())

	h.Enqueue(loud(time.Second))
	h.Enqueue(quiet(900 * time.Millisecond))
	h.Close()

	if rec.count() != 0 {
		t.Error("failed transcription must not deliver a segment")
	}
	if h.Stats().Errors != 1 {
		t.Errorf("expected 1 error, got %d", h.Stats().Errors)
	}
}

func TestHandler_AppendsWhileTranscribing(t *testing.T) {
	tr := mock.New(mock.WithDelay(100 * time.Millisecond))
	h, rec := newTestHandler(tr, DefaultLimits())
	h.Start(context.Background())

	h.OnAudioFrame(loud(time.Second))
	if !h.OnAudioFrame(quiet(900 * time.Millisecond)) {
		t.Fatal("expected a flush")
	}
	// The first segment is still being transcribed.
	h.OnAudioFrame(loud(500 * time.Millisecond))
	if got := h.Buffer().Duration(); got != 500*time.Millisecond {
		t.Errorf("next segment should accumulate during the flush, buffered %v", got)
	}

	h.Close()
	if tr.Calls() != 2 || rec.count() != 2 {
		t.Errorf("expected 2 segments, calls=%d segments=%d", tr.Calls(), rec.count())
	}
}

func TestHandler_Reset(t *testing.T) {
	h, _ := newTestHandler(mock.New(), DefaultLimits())
	h.OnAudioFrame(loud(time.Second))
	h.Reset()

	if h.Buffer().Duration() != 0 || h.Buffer().State() != segment.StateIdle {
		t.Error("reset should empty the buffer")
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.FrameQueue != 256 || l.FlushQueue != 4 || l.FlushTimeout != 30*time.Second {
		t.Errorf("unexpected defaults %+v", l)
	}

	h := NewHandlerWithLimits(nil, nil, "s", "mic", Limits{})
	if cap(h.frames) != 256 || cap(h.flushes) != 4 {
		t.Error("zero limits should fall back to defaults")
	}
}
