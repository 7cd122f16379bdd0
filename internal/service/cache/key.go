// Package cache implements the exact (LRU) and semantic (FIFO) answer caches.
package cache

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ContextTurns is how many recent turns take part in keys and fingerprints.
const ContextTurns = 3

// Key identifies a (question, recent context) pair in the exact cache.
type Key uint64

// Normalize lowercases and trims a question.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// lastTurns returns the trailing ContextTurns turns of history.
func lastTurns(history []string) []string {
	if len(history) > ContextTurns {
		return history[len(history)-ContextTurns:]
	}
	return history
}

// MakeKey hashes the normalized question together with the last turns.
// Inputs differing only in case or surrounding whitespace of the question
// produce the same key. Each part is NUL-terminated so that text inside a
// turn can never mimic a turn boundary.
func MakeKey(question string, history []string) Key {
	d := xxhash.New()
	d.WriteString(Normalize(question))
	d.Write([]byte{0})
	for _, t := range lastTurns(history) {
		d.WriteString(t)
		d.Write([]byte{0})
	}
	return Key(d.Sum64())
}

// Fingerprint hashes the last turns only. Empty history has fingerprint 0.
func Fingerprint(history []string) uint64 {
	turns := lastTurns(history)
	if len(turns) == 0 {
		return 0
	}
	d := xxhash.New()
	for _, t := range turns {
		d.WriteString(t)
		d.Write([]byte{0})
	}
	return d.Sum64()
}
