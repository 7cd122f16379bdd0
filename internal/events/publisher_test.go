package events

import (
	"context"
	"testing"

	"ai-live-hints-service/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTranscript != nil || p.writerAnswer != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicTranscript: "hints.transcript",
		TopicAnswer:     "hints.answer",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerTranscript.Topic != "hints.transcript" || p.writerAnswer.Topic != "hints.answer" {
		t.Errorf("unexpected topics %q %q", p.writerTranscript.Topic, p.writerAnswer.Topic)
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		TopicTranscript: "test.transcript",
		TopicAnswer:     "test.answer",
		Principal:       "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicTranscript != "test.transcript" {
		t.Errorf("expected transcript topic 'test.transcript', got %s", p.topicTranscript)
	}
	if p.topicAnswer != "test.answer" {
		t.Errorf("expected answer topic 'test.answer', got %s", p.topicAnswer)
	}
}

func TestPublisher_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, Principal: "test-svc"})
	ctx := context.Background()

	seg := models.TranscriptSegment{
		EventType: models.EventTypeTranscript,
		SessionID: "s-1",
		SegmentID: "s-1-seg-1",
		Text:      "what is a goroutine",
	}
	if err := p.PublishTranscript(ctx, "s-1", seg); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	ans := models.AnswerEvent{
		EventType: models.EventTypeAnswer,
		SessionID: "s-1",
		Question:  "what is a goroutine",
		Answer:    "A lightweight thread.",
		Source:    "generated",
	}
	if err := p.PublishAnswer(ctx, "s-1", ans); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_UnmarshalableEvent(t *testing.T) {
	p := New(&Config{Enabled: false})
	ctx := context.Background()

	if err := p.PublishTranscript(ctx, "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable transcript event")
	}
	if err := p.PublishAnswer(ctx, "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable answer event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	if err := New(&Config{Enabled: false}).Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
	if err := (&Publisher{}).Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
