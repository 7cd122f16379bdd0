// Package stt defines the interface for Speech-to-Text backends.
package stt

import (
	"context"
	"errors"
)

// ErrTranscriptionUnavailable is returned when the STT backend fails or is
// unreachable. The caller's buffer is still reset.
var ErrTranscriptionUnavailable = errors.New("transcription unavailable")

// Transcriber defines the interface for STT providers (Google, Whisper, mock).
// Implementations are treated as opaque: one call per finished speech segment.
type Transcriber interface {
	// Transcribe converts mono float samples normalized to [-1, 1] into text.
	// languageHint may be empty to let the provider decide.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (string, error)
}

// TranscriberFunc adapts a plain function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, samples []float32, sampleRate int, languageHint string) (string, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (string, error) {
	return f(ctx, samples, sampleRate, languageHint)
}

// ToLinear16 converts normalized float samples to little-endian signed 16-bit PCM.
func ToLinear16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := ToInt16(s)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// ToInt16 clamps and scales a normalized sample.
func ToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// FromLinear16 converts little-endian signed 16-bit PCM to normalized samples.
// A trailing odd byte is ignored.
func FromLinear16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}
