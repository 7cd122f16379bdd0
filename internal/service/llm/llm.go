// Package llm defines the inference and embedding collaborators and their
// Ollama and OpenAI-compatible backends.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable is returned when no embedding can be produced.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	// ErrBackendUnavailable is returned when the inference server cannot be reached.
	ErrBackendUnavailable = errors.New("inference backend unavailable")
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// KeepAlive is forwarded to the backend unchanged.
	KeepAlive string
}

// Chunk is one piece of a streamed answer. The last chunk on a channel has
// Done set or carries Err; the channel is closed right after it.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// Inferrer streams a generated answer.
type Inferrer interface {
	Infer(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ClampBudget keeps generation parameters inside the range every backend accepts.
func ClampBudget(maxTokens int, temperature float64) (int, float64) {
	maxTokens = max(50, min(1000, maxTokens))
	temperature = max(0, min(1, temperature))
	return maxTokens, temperature
}

// send delivers c unless ctx is done first.
func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
