package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/logcatd/internal/api/v1"
	"github.com/gosuda/logcatd/internal/api/ws"
	"github.com/gosuda/logcatd/internal/config"
	"github.com/gosuda/logcatd/internal/prefs"
	"github.com/gosuda/logcatd/internal/server/middleware"
)

// Ingestor is the ingestion core as seen by the HTTP and websocket layers.
// *logcat.Service satisfies this interface.
type Ingestor interface {
	v1.Ingestor
	ws.Streamer
}

// Deps are the components served over HTTP. Archive and Mirror are optional;
// leave them nil (untyped) when the backing store is not configured.
type Deps struct {
	Ingestor Ingestor
	Devices  v1.DeviceLister
	Archive  v1.Archive
	Mirror   ws.Mirror
	Prefs    prefs.Prefs
	Location *time.Location
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	wsHub      *ws.Hub
	cancel     context.CancelFunc
}

// New creates a Server with all routes wired. ctx bounds background work
// started by middleware.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	hub := ws.NewHub(deps.Ingestor, deps.Mirror, originPatterns(cfg.Server.CORSOrigins)...)

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Server{
		router: router,
		wsHub:  hub,
		cancel: cancel,
		httpServer: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			ReadTimeout:       cfg.Server.ReadTimeout,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		// WriteTimeout would cut websocket streams, so it applies per API request.
		r.Use(chimw.Timeout(cfg.Server.WriteTimeout))

		apiConfig := huma.DefaultConfig("logcatd API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, deps)
	})

	router.Route("/ws", func(r chi.Router) {
		registerWSRoutes(r, hub)
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": len(deps.Ingestor.Sessions()),
		})
	})

	return s
}

// originPatterns turns CORS origins into websocket origin host patterns.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, then ends open websocket
// streams, which Shutdown does not track.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
