// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"ai-live-hints-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode  string
	SampleRateHz  int32
	AudioEncoding string
	Model         string
	Punctuation   bool
}

// DefaultConfig returns the live-speech recognition defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
		Model:         "latest_short",
		Punctuation:   true,
	}
}

// Transcriber implements stt.Transcriber using synchronous recognition.
// Segments are capped at a few seconds, well under the sync API limit.
type Transcriber struct {
	client *speech.Client
	cfg    Config
}

// New creates a new Google STT transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Transcriber{client: c, cfg: cfg}, nil
}

// Transcribe sends one segment to Google and joins the top alternatives.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (string, error) {
	resp, err := t.client.Recognize(ctx, buildRequest(t.cfg, samples, sampleRate, languageHint))
	if err != nil {
		return "", fmt.Errorf("%w: google recognize: %w", stt.ErrTranscriptionUnavailable, err)
	}
	return joinResults(resp), nil
}

// Close releases the client connection.
func (t *Transcriber) Close() error {
	return t.client.Close()
}

func buildRequest(cfg Config, samples []float32, sampleRate int, languageHint string) *speechpb.RecognizeRequest {
	lang := cfg.LanguageCode
	if languageHint != "" {
		lang = languageHint
	}
	rate := cfg.SampleRateHz
	if sampleRate > 0 {
		rate = int32(sampleRate)
	}
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
			SampleRateHertz:            rate,
			LanguageCode:               lang,
			Model:                      cfg.Model,
			EnableAutomaticPunctuation: cfg.Punctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: stt.ToLinear16(samples),
			},
		},
	}
}

func joinResults(resp *speechpb.RecognizeResponse) string {
	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(r.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// parseAudioEncoding converts a string encoding name to the Google Speech API enum.
// Supported values: LINEAR16, MULAW, FLAC, AMR, AMR_WB, OGG_OPUS, SPEEX_WITH_HEADER_BYTE, WEBM_OPUS
// Defaults to LINEAR16 if unrecognized.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[encoding]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
