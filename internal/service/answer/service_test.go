package answer

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-live-hints-service/internal/service/cache"
	"ai-live-hints-service/internal/service/classify"
	"ai-live-hints-service/internal/service/llm"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/rag"
)

// fakeInferrer implements llm.Inferrer for testing
type fakeInferrer struct {
	mu        sync.Mutex
	calls     int
	lastReq   llm.Request
	chunks    []string
	err       error
	streamErr error
	block     bool
}

func (f *fakeInferrer) Infer(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		if f.block {
			<-ctx.Done()
			return
		}
		for _, text := range f.chunks {
			select {
			case out <- llm.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
		last := llm.Chunk{Done: true}
		if f.streamErr != nil {
			last = llm.Chunk{Err: f.streamErr}
		}
		select {
		case out <- last:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (f *fakeInferrer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePrecomputed implements PrecomputedTier for testing
type fakePrecomputed struct {
	match precomputed.Match
	hit   bool
	calls int
}

func (f *fakePrecomputed) Lookup(ctx context.Context, question string) (precomputed.Match, bool) {
	f.calls++
	return f.match, f.hit
}

// fakeExact implements ExactTier for testing
type fakeExact struct {
	mu      sync.Mutex
	entries map[string]string
	gets    int
	puts    int
	cleared bool
}

func newFakeExact() *fakeExact { return &fakeExact{entries: make(map[string]string)} }

func (f *fakeExact) Get(question string, history []string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	a, ok := f.entries[cache.Normalize(question)]
	return a, ok
}

func (f *fakeExact) Put(question string, history []string, answer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.entries[cache.Normalize(question)] = answer
}

func (f *fakeExact) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.entries = make(map[string]string)
}

// fakeSemantic implements SemanticTier for testing
type fakeSemantic struct {
	mu      sync.Mutex
	hit     cache.Hit
	ok      bool
	lookups int
	puts    int
	cleared bool
}

func (f *fakeSemantic) Lookup(ctx context.Context, question string, history []string) (cache.Hit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.hit, f.ok
}

func (f *fakeSemantic) Put(ctx context.Context, question string, history []string, answer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
}

func (f *fakeSemantic) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
}

// fakeAssembler implements Assembler for testing
type fakeAssembler struct {
	last rag.Request
}

func (f *fakeAssembler) Assemble(ctx context.Context, req rag.Request) rag.Context {
	f.last = req
	return rag.Context{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleUser, Content: req.Question}},
		Degraded: true,
	}
}

// fakeMemory implements Consolidator for testing
type fakeMemory struct {
	mu        sync.Mutex
	questions []string
}

func (f *fakeMemory) Consolidate(ctx context.Context, question string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return nil
}

func TestGetAnswer_SecondCallServedFromCache(t *testing.T) {
	ctx := context.Background()
	inf := &fakeInferrer{chunks: []string{"A decorator ", "wraps a function."}}
	svc := New(Deps{
		Exact:    cache.NewExact(cache.DefaultExactSize),
		Semantic: cache.NewSemantic(nil, 0, 0),
		Inferrer: inf,
	}, DefaultConfig())

	first, err := svc.GetAnswer(ctx, Request{Question: "What is a decorator?", Profile: "interview"})
	if err != nil {
		t.Fatalf("first GetAnswer: %v", err)
	}
	if first.Source != SourceGenerated || first.Text != "A decorator wraps a function." {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := svc.GetAnswer(ctx, Request{Question: "What is a decorator?", Profile: "interview"})
	if err != nil {
		t.Fatalf("second GetAnswer: %v", err)
	}
	if second.Source != SourceExact {
		t.Errorf("expected exact tier, got %s", second.Source)
	}
	if second.Text != first.Text {
		t.Errorf("cached text %q differs from %q", second.Text, first.Text)
	}
	if !second.Cached() || second.Latency > 50*time.Millisecond {
		t.Errorf("cached answer should be immediate, took %v", second.Latency)
	}
	if inf.callCount() != 1 {
		t.Errorf("expected 1 inference call, got %d", inf.callCount())
	}
}

func TestGetAnswer_PrecomputedShortCircuits(t *testing.T) {
	pre := &fakePrecomputed{hit: true, match: precomputed.Match{
		Answer:     precomputed.Answer{ID: "prepared_1", Answer: "curated", Category: "technical"},
		Similarity: 0.93,
	}}
	exact := newFakeExact()
	sem := &fakeSemantic{}
	inf := &fakeInferrer{}
	svc := New(Deps{Precomputed: pre, Exact: exact, Semantic: sem, Inferrer: inf}, DefaultConfig())

	res, err := svc.GetAnswer(context.Background(), Request{Question: "What is a goroutine?"})
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if res.Source != SourcePrecomputed || res.Text != "curated" {
		t.Errorf("unexpected result %+v", res)
	}
	if exact.gets != 0 || sem.lookups != 0 || inf.callCount() != 0 {
		t.Errorf("later tiers consulted: exact=%d semantic=%d infer=%d", exact.gets, sem.lookups, inf.callCount())
	}
	if exact.puts != 0 || sem.puts != 0 {
		t.Error("precomputed hits are not written back")
	}
}

func TestGetAnswer_TierOrder(t *testing.T) {
	tests := []struct {
		name          string
		exactHit      bool
		semanticHit   bool
		wantSource    string
		wantSemLookup int
		wantInfer     int
	}{
		{"exact hit", true, true, SourceExact, 0, 0},
		{"semantic hit", false, true, SourceSemantic, 1, 0},
		{"full miss", false, false, SourceGenerated, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pre := &fakePrecomputed{}
			exact := newFakeExact()
			if tt.exactHit {
				exact.entries[cache.Normalize("Q?")] = "exact answer"
			}
			sem := &fakeSemantic{ok: tt.semanticHit, hit: cache.Hit{Answer: "semantic answer", Similarity: 0.9}}
			inf := &fakeInferrer{chunks: []string{"generated"}}
			svc := New(Deps{Precomputed: pre, Exact: exact, Semantic: sem, Inferrer: inf}, DefaultConfig())

			res, err := svc.GetAnswer(context.Background(), Request{Question: "Q?"})
			if err != nil {
				t.Fatalf("GetAnswer: %v", err)
			}
			if res.Source != tt.wantSource {
				t.Errorf("source = %s, want %s", res.Source, tt.wantSource)
			}
			if pre.calls != 1 || exact.gets != 1 {
				t.Errorf("precomputed and exact are always consulted first")
			}
			if sem.lookups != tt.wantSemLookup {
				t.Errorf("semantic lookups = %d, want %d", sem.lookups, tt.wantSemLookup)
			}
			if inf.callCount() != tt.wantInfer {
				t.Errorf("inference calls = %d, want %d", inf.callCount(), tt.wantInfer)
			}
		})
	}
}

func TestGetAnswer_WritesBothTiersAndMemory(t *testing.T) {
	exact := newFakeExact()
	sem := &fakeSemantic{}
	mem := &fakeMemory{}
	var notified []Result
	svc := New(Deps{
		Exact:    exact,
		Semantic: sem,
		Memory:   mem,
		Inferrer: &fakeInferrer{chunks: []string{"use ", "docker"}},
		OnAnswer: func(req Request, res Result) { notified = append(notified, res) },
	}, DefaultConfig())

	if _, err := svc.GetAnswer(context.Background(), Request{Question: "How do you use Docker?"}); err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if exact.puts != 1 || sem.puts != 1 {
		t.Errorf("expected one write per tier, got exact=%d semantic=%d", exact.puts, sem.puts)
	}
	if len(mem.questions) != 1 {
		t.Errorf("expected memory consolidation, got %v", mem.questions)
	}
	if len(notified) != 1 || notified[0].Text != "use docker" {
		t.Errorf("expected one notification with the full answer, got %+v", notified)
	}
}

func TestStream_DeliversChunksInOrder(t *testing.T) {
	svc := New(Deps{Inferrer: &fakeInferrer{chunks: []string{"a", "b", "c"}}}, DefaultConfig())

	ch, err := svc.Stream(context.Background(), Request{Question: "Tell me something"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var texts []string
	var final Chunk
	for c := range ch {
		if c.Done {
			final = c
			continue
		}
		texts = append(texts, c.Text)
	}
	if strings.Join(texts, "") != "abc" {
		t.Errorf("unexpected chunks %v", texts)
	}
	if !final.Done || final.Result.Source != SourceGenerated || final.Result.Text != "abc" {
		t.Errorf("unexpected terminal chunk %+v", final)
	}
}

func TestGetAnswer_TimeoutNoCacheWrite(t *testing.T) {
	exact := newFakeExact()
	sem := &fakeSemantic{}
	svc := New(Deps{
		Exact:    exact,
		Semantic: sem,
		Inferrer: &fakeInferrer{block: true},
	}, Config{Timeout: 30 * time.Millisecond})

	_, err := svc.GetAnswer(context.Background(), Request{Question: "Explain everything"})
	if !errors.Is(err, ErrInferenceTimeout) {
		t.Fatalf("expected ErrInferenceTimeout, got %v", err)
	}
	if exact.puts != 0 || sem.puts != 0 {
		t.Error("a timed out answer must not be cached")
	}
}

func TestGetAnswer_BackendDown(t *testing.T) {
	svc := New(Deps{
		Inferrer: &fakeInferrer{err: llm.ErrBackendUnavailable},
	}, DefaultConfig())

	_, err := svc.GetAnswer(context.Background(), Request{Question: "What is a channel?"})
	if !errors.Is(err, ErrInferenceBackendDown) {
		t.Errorf("expected ErrInferenceBackendDown, got %v", err)
	}
	if errors.Is(err, ErrInferenceTimeout) {
		t.Error("backend down must be distinct from timeout")
	}

	noBackend := New(Deps{}, DefaultConfig())
	if _, err := noBackend.GetAnswer(context.Background(), Request{Question: "What is a channel?"}); !errors.Is(err, ErrInferenceBackendDown) {
		t.Errorf("missing inferrer should report backend down, got %v", err)
	}
}

func TestGetAnswer_StreamErrorNoCacheWrite(t *testing.T) {
	exact := newFakeExact()
	svc := New(Deps{
		Exact:    exact,
		Inferrer: &fakeInferrer{chunks: []string{"partial"}, streamErr: io.ErrUnexpectedEOF},
	}, DefaultConfig())

	_, err := svc.GetAnswer(context.Background(), Request{Question: "What is a channel?"})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected stream error, got %v", err)
	}
	if exact.puts != 0 {
		t.Error("a failed stream must not be cached")
	}
}

func TestGetAnswer_Request(t *testing.T) {
	inf := &fakeInferrer{chunks: []string{"ok"}}
	asm := &fakeAssembler{}
	svc := New(Deps{Inferrer: inf, Assembler: asm}, DefaultConfig())

	res, err := svc.GetAnswer(context.Background(), Request{
		Question: "  What is a goroutine?  ",
		History:  []string{"hi"},
		Profile:  "sales",
	})
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if !res.Degraded {
		t.Error("degraded context should be reported")
	}
	if asm.last.Category != classify.Technical || asm.last.Profile != "sales" || asm.last.Question != "What is a goroutine?" {
		t.Errorf("unexpected assembler request %+v", asm.last)
	}
	budget := classify.BudgetFor(classify.Technical)
	if inf.lastReq.MaxTokens != budget.MaxTokens || inf.lastReq.Temperature != budget.Temperature {
		t.Errorf("unexpected budget %d/%f", inf.lastReq.MaxTokens, inf.lastReq.Temperature)
	}
	if inf.lastReq.KeepAlive != DefaultKeepAlive || len(inf.lastReq.Messages) != 2 {
		t.Errorf("unexpected inference request %+v", inf.lastReq)
	}
}

func TestGetAnswer_EmptyQuestion(t *testing.T) {
	svc := New(Deps{Inferrer: &fakeInferrer{}}, DefaultConfig())
	if _, err := svc.GetAnswer(context.Background(), Request{Question: "   "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestClearCaches(t *testing.T) {
	exact := newFakeExact()
	sem := &fakeSemantic{}
	svc := New(Deps{Exact: exact, Semantic: sem}, DefaultConfig())
	svc.ClearCaches()
	if !exact.cleared || !sem.cleared {
		t.Error("both caches should be cleared")
	}
}
