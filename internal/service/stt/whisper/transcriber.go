// Package whisper provides a Transcriber backed by an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI Whisper or a local whisper server).
package whisper

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	openai "github.com/sashabaranov/go-openai"

	"ai-live-hints-service/internal/service/stt"
)

// Config holds whisper endpoint settings.
type Config struct {
	BaseURL  string // empty means api.openai.com
	APIKey   string
	Model    string
	Language string
	Prompt   string
	TempDir  string
}

// DefaultConfig returns defaults for the hosted whisper model.
func DefaultConfig() Config {
	return Config{Model: openai.Whisper1}
}

// Transcriber implements stt.Transcriber over the transcription API.
type Transcriber struct {
	client *openai.Client
	cfg    Config
}

// New creates a new whisper transcriber.
func New(cfg Config) *Transcriber {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &Transcriber{client: openai.NewClientWithConfig(oc), cfg: cfg}
}

// Transcribe encodes the segment as 16-bit WAV and uploads it.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (string, error) {
	path, err := writeWAV(t.cfg.TempDir, samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: encode wav: %w", stt.ErrTranscriptionUnavailable, err)
	}
	defer os.Remove(path)

	lang := t.cfg.Language
	if languageHint != "" {
		lang = languageHint
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.cfg.Model,
		FilePath: path,
		Language: lang,
		Prompt:   t.cfg.Prompt,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: whisper: %w", stt.ErrTranscriptionUnavailable, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// writeWAV writes mono 16-bit PCM to a temp file and returns its path.
func writeWAV(dir string, samples []float32, sampleRate int) (string, error) {
	f, err := os.CreateTemp(dir, "segment-*.wav")
	if err != nil {
		return "", err
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(stt.ToInt16(s))
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
