package http

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ai-live-hints-service/internal/models"
	"ai-live-hints-service/internal/schema"
	"ai-live-hints-service/internal/service/answer"
	"ai-live-hints-service/internal/service/audio"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/segment"
	"ai-live-hints-service/internal/service/session"
	"ai-live-hints-service/internal/service/stt"
	"ai-live-hints-service/internal/service/stt/mock"
)

// fakeAnswerer implements session.Answerer for testing
type fakeAnswerer struct {
	mu      sync.Mutex
	err     error
	cleared int
}

func (f *fakeAnswerer) GetAnswer(ctx context.Context, req answer.Request) (answer.Result, error) {
	if f.err != nil {
		return answer.Result{}, f.err
	}
	return answer.Result{Text: "Backend developer, Go and Kafka.", Source: answer.SourcePrecomputed, Latency: 2 * time.Millisecond}, nil
}

func (f *fakeAnswerer) Stream(ctx context.Context, req answer.Request) (<-chan answer.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan answer.Chunk, 3)
	ch <- answer.Chunk{Text: "Use "}
	ch <- answer.Chunk{Text: "a mutex."}
	ch <- answer.Chunk{Done: true, Result: answer.Result{Text: "Use a mutex.", Source: answer.SourceGenerated, Latency: 40 * time.Millisecond}}
	close(ch)
	return ch, nil
}

func (f *fakeAnswerer) ClearCaches() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

// fakeLearner implements Learner for testing
type fakeLearner struct{}

func (fakeLearner) Learn(ctx context.Context, question, ans string) (precomputed.Answer, error) {
	return precomputed.Answer{ID: "qa_7", Question: question, Answer: ans}, nil
}

func newTestServer(t *testing.T, fa *fakeAnswerer, limit rate.Limit, burst int) *httptest.Server {
	t.Helper()
	sess := session.NewManager("sess-http", fa, nil, nil, session.Config{AnswerSources: []string{"remote"}})
	open := func(ctx context.Context, source string) *audio.Handler {
		buf := segment.NewBuffer(segment.New(), "sess-http", source, mock.New(mock.WithUtterances("Tell me about yourself")), segment.DefaultBufferConfig())
		h := audio.NewHandler(buf, nil, "sess-http", source)
		sess.Attach(source, h)
		h.Start(ctx)
		return h
	}
	srv := httptest.NewServer(newRouter(Deps{
		Session:   sess,
		Open:      open,
		Learner:   fakeLearner{},
		Validator: schema.New(),
		Ready:     func(context.Context) error { return nil },
		RateLimit: limit,
		RateBurst: burst,
	}))
	t.Cleanup(func() {
		srv.Close()
		sess.Close()
	})
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestProbes(t *testing.T) {
	srv := newTestServer(t, &fakeAnswerer{}, 0, 0)

	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s = %d", path, resp.StatusCode)
		}
	}
}

func TestReadiness_NotReady(t *testing.T) {
	srv := httptest.NewServer(newRouter(Deps{
		Ready: func(context.Context) error { return errors.New("inference backend is not running") },
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/readiness")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestGetAnswer(t *testing.T) {
	srv := newTestServer(t, &fakeAnswerer{}, 0, 0)

	resp, body := post(t, srv.URL+"/v1/answer", `{"question":"Tell me about yourself"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["source"] != answer.SourcePrecomputed || body["cached"] != true || body["latencyMs"] != float64(2) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestGetAnswer_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body string
		code int
	}{
		{"malformed", nil, `{"question":`, http.StatusBadRequest},
		{"too short", nil, `{"question":"hi"}`, http.StatusBadRequest},
		{"timeout", answer.ErrInferenceTimeout, `{"question":"What is a goroutine?"}`, http.StatusGatewayTimeout},
		{"backend down", answer.ErrInferenceBackendDown, `{"question":"What is a goroutine?"}`, http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), `{"question":"What is a goroutine?"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeAnswerer{err: tt.err}, 0, 0)
			resp, body := post(t, srv.URL+"/v1/answer", tt.body)
			if resp.StatusCode != tt.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
			}
			if body["error"] == "" || body["error"] == nil {
				t.Error("error message expected")
			}
		})
	}
}

func TestStreamAnswer(t *testing.T) {
	srv := newTestServer(t, &fakeAnswerer{}, 0, 0)

	resp, err := http.Post(srv.URL+"/v1/answer/stream", "application/json", strings.NewReader(`{"question":"How do I protect shared state?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var events []streamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if events[0].Chunk+events[1].Chunk != "Use a mutex." {
		t.Errorf("unexpected chunks %+v", events[:2])
	}
	last := events[2]
	if !last.Done || last.Cached || last.Source != answer.SourceGenerated || last.LatencyMs != 40 {
		t.Errorf("unexpected done event %+v", last)
	}
}

func TestClearSessionAndLearn(t *testing.T) {
	fa := &fakeAnswerer{}
	srv := newTestServer(t, fa, 0, 0)

	resp, body := post(t, srv.URL+"/v1/session/clear", `{}`)
	if resp.StatusCode != http.StatusOK || body["sessionId"] != "sess-http" {
		t.Fatalf("clear: %d %v", resp.StatusCode, body)
	}
	if fa.cleared != 1 {
		t.Errorf("caches should be cleared once, got %d", fa.cleared)
	}

	resp, body = post(t, srv.URL+"/v1/answers", `{"question":"What is Go?","answer":"A language."}`)
	if resp.StatusCode != http.StatusCreated || body["id"] != "qa_7" {
		t.Errorf("learn: %d %v", resp.StatusCode, body)
	}
	resp, _ = post(t, srv.URL+"/v1/answers", `{"question":"What is Go?"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing answer: %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, &fakeAnswerer{}, rate.Every(time.Hour), 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := post(t, srv.URL+"/v1/answer", `{"question":"Tell me about yourself"}`)
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}

	// Probes are not limited.
	resp, err := http.Get(srv.URL + "/v1/liveness")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("liveness = %d", resp.StatusCode)
	}
}

func pcm(d time.Duration, amplitude float32) []byte {
	samples := make([]float32, int(d.Seconds()*16000))
	for i := range samples {
		samples[i] = amplitude
	}
	return stt.ToLinear16(samples)
}

func TestAudioSocket_PushesAnswers(t *testing.T) {
	srv := newTestServer(t, &fakeAnswerer{}, 0, 0)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/audio/ws?source=remote"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, frame := range [][]byte{pcm(time.Second, 0.4), pcm(900*time.Millisecond, 0)} {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.AnswerEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Question != "Tell me about yourself" || ev.Answer != "Backend developer, Go and Kafka." || ev.SessionID != "sess-http" {
		t.Errorf("unexpected event %+v", ev)
	}
}
