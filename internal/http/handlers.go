package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"ai-live-hints-service/internal/schema"
	"ai-live-hints-service/internal/service/answer"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

type handlers struct {
	deps Deps
}

type answerResponse struct {
	Answer    string `json:"answer"`
	Source    string `json:"source"`
	Category  string `json:"category,omitempty"`
	Cached    bool   `json:"cached"`
	LatencyMs int64  `json:"latencyMs"`
	Degraded  bool   `json:"degraded,omitempty"`
}

func toResponse(r answer.Result) answerResponse {
	return answerResponse{
		Answer:    r.Text,
		Source:    r.Source,
		Category:  string(r.Category),
		Cached:    r.Cached(),
		LatencyMs: r.Latency.Milliseconds(),
		Degraded:  r.Degraded,
	}
}

type streamEvent struct {
	Chunk     string `json:"chunk,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	Source    string `json:"source,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *handlers) getAnswer(w http.ResponseWriter, r *http.Request) {
	var req schema.AnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.Session.Ask(r.Context(), query(&req))
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// streamAnswer sends the answer as server-sent events, one per chunk,
// followed by a done event.
func (h *handlers) streamAnswer(w http.ResponseWriter, r *http.Request) {
	var req schema.AnswerRequest
	if !h.decode(w, r, &req) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch, err := h.deps.Session.Stream(r.Context(), query(&req))
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for c := range ch {
		ev := streamEvent{Chunk: c.Text}
		switch {
		case c.Err != nil:
			ev = streamEvent{Error: c.Err.Error()}
		case c.Done:
			ev = streamEvent{
				Done:      true,
				Cached:    c.Result.Cached(),
				Source:    c.Result.Source,
				LatencyMs: c.Result.Latency.Milliseconds(),
			}
		}
		if err := writeEvent(w, ev); err != nil {
			log.Debug().Err(err).Msg("Stream client went away")
			return
		}
		flusher.Flush()
	}
}

func (h *handlers) clearSession(w http.ResponseWriter, _ *http.Request) {
	h.deps.Session.ClearSession()
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": h.deps.Session.ID()})
}

func (h *handlers) learn(w http.ResponseWriter, r *http.Request) {
	if h.deps.Learner == nil {
		writeError(w, http.StatusNotImplemented, "learning is disabled")
		return
	}
	var req schema.LearnRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.deps.Learner.Learn(r.Context(), req.Question, req.Answer)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": a.ID})
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if h.deps.Validator != nil {
		if err := h.deps.Validator.Validate(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

func query(req *schema.AnswerRequest) session.Query {
	return session.Query{Question: req.Question, History: req.History, Profile: req.Profile}
}

// statusOf maps domain errors to HTTP status codes. Timeouts and a missing
// backend get distinct codes so clients can tell them apart.
func statusOf(err error) int {
	switch {
	case errors.Is(err, answer.ErrInferenceTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, answer.ErrInferenceBackendDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, answer.ErrEmptyQuestion),
		errors.Is(err, precomputed.ErrEmptyAnswer):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeEvent(w http.ResponseWriter, ev streamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
