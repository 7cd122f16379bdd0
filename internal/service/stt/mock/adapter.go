// Package mock provides a mock Transcriber for running without an STT backend.
// Every call returns the next canned interview utterance.
package mock

import (
	"context"
	"sync"
	"time"
)

// DefaultUtterances are the canned transcripts, cycled in order.
var DefaultUtterances = []string{
	"Tell me about yourself",
	"What is the difference between a process and a thread?",
	"Describe a difficult project you worked on",
	"How does garbage collection work in Go?",
	"Why do you want to join our team?",
}

// Transcriber implements stt.Transcriber with canned responses.
type Transcriber struct {
	mu         sync.Mutex
	utterances []string
	next       int
	calls      int
	delay      time.Duration
	err        error
}

// Option configures the mock.
type Option func(*Transcriber)

// WithDelay simulates backend latency.
func WithDelay(d time.Duration) Option {
	return func(t *Transcriber) { t.delay = d }
}

// WithUtterances replaces the canned transcripts.
func WithUtterances(u ...string) Option {
	return func(t *Transcriber) { t.utterances = u }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(t *Transcriber) { t.err = err }
}

// New creates a new mock transcriber.
func New(opts ...Option) *Transcriber {
	t := &Transcriber{utterances: DefaultUtterances}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe returns the next canned utterance.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (string, error) {
	t.mu.Lock()
	t.calls++
	delay, err := t.delay, t.err
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.utterances) == 0 {
		return "", nil
	}
	text := t.utterances[t.next%len(t.utterances)]
	t.next++
	return text, nil
}

// Calls returns how many times Transcribe ran.
func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
