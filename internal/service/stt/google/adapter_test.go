package google

import (
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"ENCODING_UNSPECIFIED", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"linear16", speechpb.RecognitionConfig_LINEAR16},             // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},              // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},                     // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestBuildRequest(t *testing.T) {
	cfg := DefaultConfig()

	req := buildRequest(cfg, []float32{0, 0.5, -0.5}, 8000, "ru-RU")
	rc := req.GetConfig()
	if rc.GetLanguageCode() != "ru-RU" {
		t.Errorf("language hint should override config, got %s", rc.GetLanguageCode())
	}
	if rc.GetSampleRateHertz() != 8000 {
		t.Errorf("expected sample rate 8000, got %d", rc.GetSampleRateHertz())
	}
	if got := len(req.GetAudio().GetContent()); got != 6 {
		t.Errorf("expected 6 bytes of LINEAR16 audio, got %d", got)
	}

	req = buildRequest(cfg, nil, 0, "")
	if req.GetConfig().GetLanguageCode() != "en-US" {
		t.Errorf("expected config language, got %s", req.GetConfig().GetLanguageCode())
	}
	if req.GetConfig().GetSampleRateHertz() != 16000 {
		t.Errorf("expected config sample rate, got %d", req.GetConfig().GetSampleRateHertz())
	}
}

func TestJoinResults(t *testing.T) {
	resp := &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " tell me about "}}},
			{},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "your last project"}}},
		},
	}

	if got := joinResults(resp); got != "tell me about your last project" {
		t.Errorf("joinResults = %q", got)
	}
	if got := joinResults(&speechpb.RecognizeResponse{}); got != "" {
		t.Errorf("expected empty transcript, got %q", got)
	}
}
