package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Chunk) (string, Chunk) {
	t.Helper()
	var sb strings.Builder
	var last Chunk
	for c := range ch {
		sb.WriteString(c.Text)
		last = c
	}
	return sb.String(), last
}

func TestClampBudget(t *testing.T) {
	tests := []struct {
		tokens   int
		temp     float64
		wantTok  int
		wantTemp float64
	}{
		{10, -1, 50, 0},
		{5000, 2, 1000, 1},
		{700, 0.5, 700, 0.5},
	}
	for _, tt := range tests {
		tok, temp := ClampBudget(tt.tokens, tt.temp)
		if tok != tt.wantTok || temp != tt.wantTemp {
			t.Errorf("ClampBudget(%d, %.1f) = (%d, %.1f), want (%d, %.1f)",
				tt.tokens, tt.temp, tok, temp, tt.wantTok, tt.wantTemp)
		}
	}
}

func TestOllama_InferStreams(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"message":{"role":"assistant","content":"Goroutines "},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"are cheap."},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL + "/", Model: "qwen"})
	ch, err := o.Infer(context.Background(), Request{
		Messages:    []Message{{Role: RoleUser, Content: "what is a goroutine"}},
		MaxTokens:   5000,
		Temperature: 0.5,
		KeepAlive:   "-1m",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, last := collect(t, ch)
	if text != "Goroutines are cheap." {
		t.Errorf("got %q", text)
	}
	if !last.Done {
		t.Errorf("expected a terminal Done chunk, got %+v", last)
	}
	for _, want := range []string{`"keep_alive":-1`, `"num_predict":1000`, `"stream":true`, `"top_p":0.9`, `"temperature":0.5`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("request body missing %s: %s", want, gotBody)
		}
	}
}

func TestOllama_InferTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"content":"half"},"done":false}`+"\n")
	}))
	defer srv.Close()

	ch, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Infer(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, last := collect(t, ch)
	if !errors.Is(last.Err, io.ErrUnexpectedEOF) {
		t.Errorf("expected unexpected EOF, got %+v", last)
	}
}

func TestOllama_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: url})
	if _, err := o.Infer(context.Background(), Request{}); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := o.Embed(context.Background(), "x"); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if err := o.Health(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestOllama_InferRespectsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ch, err := NewOllama(OllamaConfig{BaseURL: srv.URL}).Infer(ctx, Request{})
	if err == nil {
		for c := range ch {
			if c.Err != nil {
				err = c.Err
			}
		}
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if ctx.Err() == nil {
		t.Error("stream should only end after the deadline")
	}
}

func TestOllama_ServerErrorIsBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"model 'qwen' not found"}`)
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "qwen"})
	if _, err := o.Infer(context.Background(), Request{}); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Infer: expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := o.Embed(context.Background(), "x"); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("Embed: expected ErrEmbeddingUnavailable, got %v", err)
	}
	if _, err := o.ListModels(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("ListModels: expected ErrBackendUnavailable, got %v", err)
	}
}

func TestParseKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantNil bool
	}{
		{in: "", wantNil: true},
		{in: "bogus", wantNil: true},
		{in: "5m", want: 5 * time.Minute},
		{in: "-1m", want: -time.Minute},
		{in: "-1", want: -time.Second},
		{in: "300", want: 300 * time.Second},
	}
	for _, tt := range tests {
		got := parseKeepAlive(tt.in)
		if tt.wantNil {
			if got != nil {
				t.Errorf("parseKeepAlive(%q) = %v, want nil", tt.in, got.Duration)
			}
			continue
		}
		if got == nil || got.Duration != tt.want {
			t.Errorf("parseKeepAlive(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOllama_EmbedAndListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			io.WriteString(w, `{"model":"nomic","embeddings":[[0.1,0.2,0.3]]}`)
		case "/api/tags":
			io.WriteString(w, `{"models":[{"name":"qwen2.5:7b","size":4700000000,"details":{"family":"qwen2","parameter_size":"7.6B"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL, EmbedModel: "nomic"})
	vec, err := o.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}

	models, err := o.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].Name != "qwen2.5:7b" || models[0].Details.Family != "qwen2" {
		t.Errorf("unexpected models: %+v", models)
	}
	if err := o.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestOpenAI_InferStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Use \"}}]}\n\n")
		io.WriteString(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"channels.\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "test"})
	ch, err := o.Infer(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, last := collect(t, ch)
	if text != "Use channels." {
		t.Errorf("got %q", text)
	}
	if !last.Done {
		t.Errorf("expected Done, got %+v", last)
	}
}

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.5]}]}`)
	}))
	defer srv.Close()

	vec, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1"}).Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("expected 2 dims, got %d", len(vec))
	}
}

// countingEmbedder implements Embedder for testing
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestMemoEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	m := NewMemoEmbedder(inner, 8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Embed(ctx, "  what is a map "); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}

	m.Purge()
	m.Embed(ctx, "what is a map")
	if inner.calls != 2 {
		t.Errorf("expected a fresh call after purge, got %d", inner.calls)
	}
}

func TestMemoEmbedder_ErrorsNotRemembered(t *testing.T) {
	inner := &countingEmbedder{err: ErrEmbeddingUnavailable}
	m := NewMemoEmbedder(inner, 8)

	m.Embed(context.Background(), "q")
	inner.err = nil
	if _, err := m.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}
