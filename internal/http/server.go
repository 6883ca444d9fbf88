// Package http exposes the scheduler over a small JSON API: template
// listing and creation, the activation toggle, and the batch trigger.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	applog "scadenze/internal/log"
	"scadenze/internal/services"
)

type Server struct {
	templates    *services.TemplateService
	materializer *services.Materializer
	batchTimeout time.Duration
	srv          *http.Server
}

func NewServer(addr string, templates *services.TemplateService, materializer *services.Materializer, batchTimeout time.Duration) *Server {
	s := &Server{
		templates:    templates,
		materializer: materializer,
		batchTimeout: batchTimeout,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleCreateTemplate)
		r.Put("/templates/{id}/active", s.handleSetActive)
		r.Post("/process", s.handleProcess)
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	slog.Info("HTTP server listening", "addr", s.srv.Addr, applog.FieldComponent, applog.ComponentHTTP)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "Request handled",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldRequestID, chimw.GetReqID(r.Context()),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, ww.Status(),
			applog.FieldDuration, time.Since(start).Milliseconds())
	})
}
