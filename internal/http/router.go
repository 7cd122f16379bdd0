package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"ai-live-hints-service/internal/app"
	"ai-live-hints-service/internal/schema"
	"ai-live-hints-service/internal/service/audio"
	"ai-live-hints-service/internal/service/precomputed"
	"ai-live-hints-service/internal/service/session"
)

// Learner stores curated answers.
type Learner interface {
	Learn(ctx context.Context, question, answer string) (precomputed.Answer, error)
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Session   *session.Manager
	Open      func(ctx context.Context, source string) *audio.Handler
	Learner   Learner
	Validator *schema.Validator
	Ready     func(ctx context.Context) error
	RateLimit rate.Limit
	RateBurst int
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	return newRouter(Deps{
		Session:   application.Session,
		Open:      application.OpenSource,
		Learner:   application.Precomputed,
		Validator: application.Validator,
		Ready:     application.Ready,
		RateLimit: rate.Limit(application.Cfg.HTTP.RateLimit),
		RateBurst: application.Cfg.HTTP.RateBurst,
	})
}

func newRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}
	limiter := newRateLimiter(deps.RateLimit, deps.RateBurst)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.middleware)
			r.Post("/answer", h.getAnswer)
			r.Post("/answer/stream", h.streamAnswer)
			r.Post("/answers", h.learn)
		})
		r.Post("/session/clear", h.clearSession)
		r.Get("/audio/ws", h.audioSocket)
	})

	return r
}
