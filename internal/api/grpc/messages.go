package grpcapi

import (
	"ai-live-hints-service/internal/service/answer"
)

// AudioFrame carries little-endian 16-bit PCM for one audio source.
type AudioFrame struct {
	Source string `json:"source,omitempty"`
	Audio  []byte `json:"audio"`
}

// AudioAck closes an audio stream.
type AudioAck struct {
	SessionID string `json:"sessionId"`
	Source    string `json:"source"`
	Frames    int    `json:"frames"`
	Dropped   int    `json:"dropped"`
	Segments  int    `json:"segments"`
}

// AnswerResponse is a complete answer.
type AnswerResponse struct {
	Text      string `json:"text"`
	Source    string `json:"source"`
	Category  string `json:"category,omitempty"`
	Cached    bool   `json:"cached"`
	LatencyMs int64  `json:"latencyMs"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// AnswerChunk is one message of a streamed answer. The last one has Done
// set and carries the answer metadata.
type AnswerChunk struct {
	Text   string          `json:"text,omitempty"`
	Done   bool            `json:"done,omitempty"`
	Answer *AnswerResponse `json:"answer,omitempty"`
}

// ClearResponse acknowledges a cleared session.
type ClearResponse struct {
	SessionID string `json:"sessionId"`
}

// LearnResponse returns the id of a learned answer.
type LearnResponse struct {
	ID string `json:"id"`
}

func toResponse(res answer.Result) *AnswerResponse {
	return &AnswerResponse{
		Text:      res.Text,
		Source:    res.Source,
		Category:  string(res.Category),
		Cached:    res.Cached(),
		LatencyMs: res.Latency.Milliseconds(),
		Degraded:  res.Degraded,
	}
}
