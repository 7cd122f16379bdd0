package llm

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoEmbedder remembers recent embeddings so one question is embedded
// once even though several cache tiers look it up.
type MemoEmbedder struct {
	inner Embedder
	memo  *lru.Cache[string, []float32]
}

// NewMemoEmbedder wraps inner with an LRU of the given size.
func NewMemoEmbedder(inner Embedder, size int) *MemoEmbedder {
	if size <= 0 {
		size = 256
	}
	memo, _ := lru.New[string, []float32](size)
	return &MemoEmbedder{inner: inner, memo: memo}
}

// Embed returns a remembered vector or asks the inner embedder.
// Failures are not remembered.
func (m *MemoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if v, ok := m.memo.Get(key); ok {
		return v, nil
	}
	v, err := m.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	m.memo.Add(key, v)
	return v, nil
}

// Purge forgets every remembered vector.
func (m *MemoEmbedder) Purge() {
	m.memo.Purge()
}
