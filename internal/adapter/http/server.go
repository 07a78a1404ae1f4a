package http

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/qso-map-service/internal/domain"
)

// Route paths served to map clients.
const (
	StreamPath = "/api/public/v1/map/ws"
	HomePath   = "/api/public/v1/points/home"
	AssetsPath = "/assets/"
)

// PublicRequestsPerMinute bounds requests per client IP on the public API.
const PublicRequestsPerMinute = 60

//go:embed assets
var embeddedAssets embed.FS

// Readiness is ready only when every checker is.
type Readiness []sharedobs.ReadinessChecker

// CheckReadiness returns the first checker error.
func (r Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Options configures the routes.
type Options struct {
	Addr      string
	Home      domain.Point
	AssetsDir string // overrides the built-in map page when set
}

// Server exposes the contact stream, the home point, static assets, and the
// health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the chi router. stream handles WebSocket upgrades.
func NewServer(opts Options, stream http.Handler, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	r.Get("/health", handleLiveness)
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
		// Keyed on the connection's remote address; forwarded headers are not trusted.
		r.Use(httprate.LimitByIP(PublicRequestsPerMinute, time.Minute))

		r.Get(StreamPath, stream.ServeHTTP)
		r.Get(HomePath, handleHome(opts.Home))
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, AssetsPath, http.StatusFound)
	})
	r.Handle(AssetsPath+"*", http.StripPrefix(AssetsPath, http.FileServer(assetsFS(opts.AssetsDir))))

	return s
}

// Start begins listening. Request contexts derive from ctx so long-lived
// streams end with it. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx ends, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func handleHome(home domain.Point) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sharedobs.WriteJSON(w, http.StatusOK, home)
	}
}

func assetsFS(dir string) http.FileSystem {
	if dir != "" {
		return http.Dir(dir)
	}
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err) // embedded tree is fixed at build time
	}
	return http.FS(sub)
}
