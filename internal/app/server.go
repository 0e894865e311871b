package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Contexta-knowledge/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Contexta-knowledge/internal/api/middlewares"
	"github.com/markdave123-py/Contexta-knowledge/internal/config"
	"github.com/markdave123-py/Contexta-knowledge/internal/core/ingestion_engine"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, ing ingestion_engine.Ingestor, kb handlers.KnowledgeBase) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, ing, kb),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func NewRouter(cfg *config.Config, ing ingestion_engine.Ingestor, kb handlers.KnowledgeBase) http.Handler {
	knowledgeHandler := handlers.NewKnowledgeHandler(ing, kb, cfg.MaxUploadMB)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(requestIDFromChi)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/admin", func(admin chi.Router) {
		admin.Use(appMiddleware.AdminJWT(cfg.JWTSecret))

		// ingestion runs as long as its batches take
		admin.Post("/extract", knowledgeHandler.Extract)
		admin.Post("/extract-text", knowledgeHandler.Extract)
		admin.Post("/save-chunks", knowledgeHandler.SaveChunks)
		admin.Post("/upload-knowledge", knowledgeHandler.UploadKnowledge)
		admin.Post("/ingest-sessions/{id}/finalize", knowledgeHandler.FinalizeSession)
		admin.Post("/ingest-sessions/{id}/abort", knowledgeHandler.AbortSession)

		admin.Group(func(read chi.Router) {
			read.Use(middleware.Timeout(60 * time.Second))
			read.Get("/knowledge-files", knowledgeHandler.ListFiles)
			read.Delete("/knowledge-files", knowledgeHandler.DeleteFile)
			read.Get("/download-knowledge", knowledgeHandler.Download)
			read.Post("/knowledge-search", knowledgeHandler.Search)
		})
	})

	return r
}

// requestIDFromChi tags the request logger with chi's request id.
func requestIDFromChi(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
