package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/location"
)

// RouterConfig collects what the routes are built from
type RouterConfig struct {
	List           ListController
	Archive        SnapshotRepository // optional
	Subject        *location.Subject  // optional, enables PUT/DELETE /api/location
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires every route
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	racks := NewRackHandler(cfg.List, cfg.Archive, logger)
	locations := NewLocationHandler(cfg.Subject, cfg.List, logger)
	stream := NewStreamHandler(cfg.List, cfg.AllowedOrigins, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", racks.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/racks", racks.GetRacks)
		r.Get("/racks/stream", stream.ServeWS)
		r.Get("/racks/{rackID}", racks.GetRack)
		r.Get("/racks/{rackID}/history", racks.GetRackHistory)
		r.Post("/refresh", racks.Refresh)
		r.Put("/location", locations.PutLocation)
		r.Delete("/location", locations.DeleteLocation)
		r.Get("/snapshots", racks.GetSnapshots)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(started)),
			)
		})
	}
}

// Server wraps http.Server
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the server; no write timeout so streams stay open
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
