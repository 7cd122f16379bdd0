// Package models defines the events published by the hints service.
package models

const (
	EventTypeTranscript = "session.transcript.segment"
	EventTypeAnswer     = "session.answer.ready"
)

// TranscriptSegment is emitted for every transcribed speech segment.
type TranscriptSegment struct {
	EventType    string `json:"eventType"`
	SessionID    string `json:"sessionId"`
	Source       string `json:"source"`
	Timestamp    int64  `json:"timestamp"`
	SegmentID    string `json:"segmentId"`
	Text         string `json:"text"`
	DurationMs   int64  `json:"durationMs"`
	EndToEndMs   int64  `json:"endToEndMs"`
	TranscribeMs int64  `json:"transcribeMs"`
}

// AnswerEvent is emitted once a hint is ready, cached or generated.
type AnswerEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Source    string `json:"source"`
	Category  string `json:"category,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
	Degraded  bool   `json:"degraded,omitempty"`
}
