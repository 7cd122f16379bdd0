package segment

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Generator hands out session-scoped segment ids.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", sessionId, n)
}

// Latency is the timing report attached to every transcribed segment.
type Latency struct {
	// EndToEndMs runs from the last loud frame to transcript ready.
	EndToEndMs int64 `json:"endToEndMs"`
	// TranscribeMs is the time spent inside the transcriber.
	TranscribeMs int64 `json:"transcribeMs"`
}

// Segment is the immutable result of a buffer flush.
type Segment struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
	Latency  Latency       `json:"latency"`
}

// Empty reports whether the transcriber produced nothing usable.
func (s *Segment) Empty() bool {
	return s == nil || s.Text == ""
}
