package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/speaker-align/internal/align"
	"github.com/snarg/speaker-align/internal/config"
	"github.com/snarg/speaker-align/internal/metrics"
	"github.com/snarg/speaker-align/internal/render"
	"github.com/snarg/speaker-align/internal/storage"
)

// ServerOptions wires the HTTP API. Optional components are nil when not
// configured.
type ServerOptions struct {
	Config      *config.Config
	DB          TranscriptStore
	DBHealth    Pinger
	MQTT        ConnectionChecker
	Watcher     WatcherStatusSource
	Queue       JobQueue
	Store       storage.Store
	Names       render.SpeakerNames
	AlignConfig align.Options
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewRouter builds the route tree.
func NewRouter(opts ServerOptions) http.Handler {
	cfg := opts.Config
	log := opts.Log
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.CORSOrigins))

	// Health and metrics: no auth
	health := NewHealthHandler(HealthOptions{
		DB:      opts.DBHealth,
		MQTT:    opts.MQTT,
		Watcher: opts.Watcher,
		Queue:   opts.Queue,
		Collaborators: map[string]bool{
			"whisper": cfg.Whisper.URL != "",
			"diarize": cfg.Diarize.URL != "",
		},
		Version:   opts.Version,
		StartTime: opts.StartTime,
	})
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(MaxBodySize(cfg.MaxUploadMB << 20))

		NewAlignHandler(opts.AlignConfig, opts.Names, log).Routes(r)
		if opts.Queue != nil {
			NewJobsHandler(opts.Queue, cfg.UploadDir, log).Routes(r)
		}
		NewTranscriptsHandler(opts.DB, opts.Store, opts.Names, log).Routes(r)
	})

	return r
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
