// Package server exposes the metadata cache and tool operations to the UI
// over a local HTTP API, with progress events pushed through a websocket.
package server

import (
	"context"
	"crypto/hmac"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/schaermu/modshell/internal/metadata"
	"github.com/schaermu/modshell/internal/rclone"
)

// MetadataCache is the part of metadata.Cache the server uses
type MetadataCache interface {
	GetMetadata(paths []string, ignoreModTime bool) ([]metadata.Record, error)
	Clear() error
}

// Syncer runs directory syncs
type Syncer interface {
	Run(ctx context.Context, req rclone.Request) (bool, error)
}

// Archiver packs and unpacks game archives
type Archiver interface {
	Unpack(ctx context.Context, src, dst, listenerID string) error
	Pack(ctx context.Context, srcDir, name, dstDir, listenerID string) error
}

// Deps are the components the server exposes. Archiver may be nil on
// systems without the archive tool; Metrics may be nil to disable /metrics.
type Deps struct {
	Cache      MetadataCache
	Syncer     Syncer
	Archiver   Archiver
	Hub        *Hub
	Metrics    http.Handler
	HTTPClient *http.Client
}

// Server implements the bridge HTTP server
type Server struct {
	deps   Deps
	token  string
	logger *slog.Logger

	// cacheMu serializes metadata calls; the cache itself does not.
	cacheMu sync.Mutex
}

// New creates a server. An empty token disables authentication.
func New(deps Deps, token string, logger *slog.Logger) *Server {
	if deps.Hub == nil {
		deps.Hub = NewHub(logger)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Server{
		deps:   deps,
		token:  token,
		logger: logger,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/metadata", func(r chi.Router) {
			r.Post("/", s.handleGetMetadata)
			r.Delete("/", s.handleClearMetadata)
			r.Get("/epoch", s.handleModifiedEpoch)
		})
		r.Post("/sync", s.handleSync)
		r.Route("/psarc", func(r chi.Router) {
			r.Post("/unpack", s.handleUnpack)
			r.Post("/pack", s.handlePack)
		})
		r.Get("/reachable", s.handleReachable)
		r.Method(http.MethodGet, "/events", s.deps.Hub)
	})

	return r
}

// Serve runs the server on l until ctx is cancelled
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: sync and archive responses are held open until
		// the tool exits.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("bridge server starting", "addr", l.Addr().String())
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down bridge server")
		// Hijacked websocket connections are not closed by Shutdown.
		s.deps.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// authenticate checks the bearer token. Browsers cannot set headers on
// websocket handshakes, so a token query parameter is accepted as well.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.URL.Query().Get("token")
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}

		// Constant-time comparison
		if !hmac.Equal([]byte(presented), []byte(s.token)) {
			s.logger.Warn("rejecting request with invalid token", "path", r.URL.Path)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
