// Package knowledge indexes the speaker's profile text for retrieval and
// keeps a small persisted memory of topics discussed in the session.
package knowledge

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 50
	// minChunkLen is the shortest chunk worth indexing.
	minChunkLen = 20
)

var sentenceBreaks = strings.NewReplacer(". ", ".\x00", "! ", "!\x00", "? ", "?\x00")

// SmartChunk splits text into chunks of roughly size characters along line
// boundaries. Lines longer than size are split into sentences. Each chunk
// after the first starts with the last overlap characters of the previous one.
func SmartChunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var (
		chunks  []string
		current []string
		curLen  int
	)

	add := func(piece string) {
		n := utf8.RuneCountInString(piece)
		if curLen+n > size && len(current) > 0 {
			joined := strings.Join(current, " ")
			chunks = append(chunks, joined)
			current, curLen = nil, 0
			if tail := lastRunes(joined, overlap); tail != "" {
				current = []string{tail}
				curLen = utf8.RuneCountInString(tail)
			}
		}
		current = append(current, piece)
		curLen += n
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) <= size {
			add(line)
			continue
		}
		for _, sentence := range strings.Split(sentenceBreaks.Replace(line), "\x00") {
			add(sentence)
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if utf8.RuneCountInString(strings.TrimSpace(c)) > minChunkLen {
			out = append(out, c)
		}
	}
	return out
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
