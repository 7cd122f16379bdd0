package stt

import "strings"

// bannedPhrases are subtitle artifacts speech models hallucinate on silence
// or music. A transcript containing one is discarded entirely.
var bannedPhrases = []string{
	"продолжение следует",
	"субтитры сделал",
	"субтитры создавал",
	"редактор субтитров",
	"continuation follows",
	"to be continued",
	"thanks for watching",
	"продолжение",
}

// CleanTranscript trims the text and drops hallucinated or
// single-character fragments. It returns "" for anything unusable.
func CleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) <= 1 {
		return ""
	}
	lower := strings.ToLower(text)
	for _, p := range bannedPhrases {
		if strings.Contains(lower, p) {
			return ""
		}
	}
	return text
}
