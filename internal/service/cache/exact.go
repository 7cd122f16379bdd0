package cache

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultExactSize is the default exact cache capacity.
const DefaultExactSize = 20

// Exact is a bounded LRU keyed by question + recent context.
// A hit promotes the entry to most recently used. Thread-safe.
type Exact struct {
	lru *lru.Cache[Key, string]
}

// NewExact creates an exact cache holding at most size answers.
func NewExact(size int) *Exact {
	if size <= 0 {
		size = DefaultExactSize
	}
	c, _ := lru.New[Key, string](size)
	return &Exact{lru: c}
}

// Get returns the cached answer for the question in this context.
func (e *Exact) Get(question string, history []string) (string, bool) {
	return e.lru.Get(MakeKey(question, history))
}

// Put stores an answer, evicting the least recently used entry when full.
// Empty answers are ignored.
func (e *Exact) Put(question string, history []string, answer string) {
	if strings.TrimSpace(answer) == "" {
		return
	}
	e.lru.Add(MakeKey(question, history), answer)
}

// Clear drops every entry.
func (e *Exact) Clear() {
	e.lru.Purge()
}

// Len returns the number of cached answers.
func (e *Exact) Len() int {
	return e.lru.Len()
}
