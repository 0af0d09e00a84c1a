// Package http exposes the REST API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auxparty/internal/auth"
	"auxparty/internal/core"
	"auxparty/internal/flood"
	"auxparty/internal/playlist"
)

type Server struct {
	config   *core.Config
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	registry *prometheus.Registry

	store    core.Store
	issuer   *auth.Issuer
	engine   *playlist.Engine
	catalogs playlist.CatalogResolver
	tokens   core.TokenSource
	gate     *flood.Floodgate
}

type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RegenerationsTotal prometheus.Counter
	HistoryInserts     prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auxparty_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"route", "status"},
		),
		RegenerationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auxparty_regenerations_total",
				Help: "Total number of playlist regenerations",
			},
		),
		HistoryInserts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "auxparty_history_inserts_total",
				Help: "Total number of listening history rows inserted",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auxparty_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component"},
		),
	}

	registry.MustRegister(
		metrics.RequestsTotal,
		metrics.RegenerationsTotal,
		metrics.HistoryInserts,
		metrics.ErrorsTotal,
	)
	return metrics
}

func NewServer(
	config *core.Config,
	store core.Store,
	issuer *auth.Issuer,
	engine *playlist.Engine,
	catalogs playlist.CatalogResolver,
	tokens core.TokenSource,
	gate *flood.Floodgate,
	logger *zap.Logger,
) *Server {
	registry := prometheus.NewRegistry()

	s := &Server{
		config:   config,
		logger:   logger.Named("http"),
		metrics:  newMetrics(registry),
		registry: registry,
		store:    store,
		issuer:   issuer,
		engine:   engine,
		catalogs: catalogs,
		tokens:   tokens,
		gate:     gate,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      s.routes(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "auxparty"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "auxparty"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/auth/login", s.instrumented("auth.login", s.handleLogin))

	mux.HandleFunc("GET /api/users/me", s.instrumented("users.me", s.requireAuth(s.handleCurrentUser)))
	mux.HandleFunc("PUT /api/users/me", s.instrumented("users.update", s.requireAuth(s.handleUpdateProfile)))
	mux.HandleFunc("POST /api/users/{id}/super", s.instrumented("users.super", s.requireAuth(s.handleSetSuperUser)))

	mux.HandleFunc("GET /api/events", s.instrumented("events.list", s.requireAuth(s.handleListEvents)))
	mux.HandleFunc("POST /api/events", s.instrumented("events.create", s.requireAuth(s.handleCreateEvent)))
	mux.HandleFunc("GET /api/events/{id}", s.instrumented("events.get", s.optionalAuth(s.handleGetEvent)))
	mux.HandleFunc("PUT /api/events/{id}", s.instrumented("events.update", s.requireAuth(s.handleUpdateEvent)))
	mux.HandleFunc("POST /api/events/{id}/join", s.instrumented("events.join",
		s.requireAuth(s.floodLimited("join", s.handleJoinEvent))))
	mux.HandleFunc("GET /api/events/{id}/share", s.instrumented("events.share", s.optionalAuth(s.handleShareEvent)))
	mux.HandleFunc("GET /api/events/{id}/playlist", s.instrumented("events.playlist", s.optionalAuth(s.handleEventPlaylist)))
	mux.HandleFunc("POST /api/events/{id}/regenerate", s.instrumented("events.regenerate",
		s.requireAuth(s.floodLimited("regenerate", s.handleRegenerate))))
	mux.HandleFunc("POST /api/events/{id}/next", s.instrumented("events.next",
		s.requireAuth(s.floodLimited("regenerate", s.handleGenerateNext))))

	mux.HandleFunc("GET /api/music/liked", s.instrumented("music.liked", s.requireAuth(s.handleLikedSongs)))
	mux.HandleFunc("GET /api/music/playlists", s.instrumented("music.playlists", s.requireAuth(s.handlePlaylists)))
	mux.HandleFunc("GET /api/music/playlists/{id}/tracks", s.instrumented("music.playlistTracks",
		s.requireAuth(s.handlePlaylistTracks)))
	mux.HandleFunc("GET /api/music/search", s.instrumented("music.search", s.requireAuth(s.handleSearch)))
	mux.HandleFunc("POST /api/music/resolve-uri", s.instrumented("music.resolve", s.requireAuth(s.handleResolveURI)))
	mux.HandleFunc("GET /api/music/playback-token", s.instrumented("music.playbackToken",
		s.requireAuth(s.handlePlaybackToken)))

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
