package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cjeanneret/scancam/internal/debug"
	"github.com/cjeanneret/scancam/internal/metrics"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr        string
	handlers    *Handlers
	tracez      http.Handler
	readTimeout time.Duration
}

// NewServer creates a server for addr. tracez may be nil when tracing is off.
func NewServer(addr string, handlers *Handlers, tracez http.Handler, readTimeout time.Duration) *Server {
	return &Server{
		addr:        addr,
		handlers:    handlers,
		tracez:      tracez,
		readTimeout: readTimeout,
	}
}

// instrument wraps h with the Prometheus request collectors under the given handler label.
func instrument(name string, h http.HandlerFunc) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		metrics.HTTPRequestDuration.MustCurryWith(prometheus.Labels{"handler": name}),
		promhttp.InstrumentHandlerCounter(
			metrics.HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"handler": name}),
			promhttp.InstrumentHandlerInFlight(metrics.HTTPRequestsInFlight, h),
		),
	)
}

// Mux returns an http.Handler with all routes and middleware.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", instrument("root", s.handlers.HandleRoot))
	mux.Handle("GET /hello", instrument("hello", s.handlers.HandleHello))
	mux.Handle("GET /health", instrument("health", s.handlers.HandleHealth))
	mux.Handle("GET /capture", instrument("capture", s.handlers.HandleCapture))
	mux.Handle("GET /preview", instrument("preview", s.handlers.HandlePreview))
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.tracez != nil {
		mux.Handle("GET /tracez", s.tracez)
	}

	return loggingMiddleware(otelhttp.NewHandler(mux, "request"))
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
// Write timeouts are left unset: a capture may wait behind others for the camera.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: s.readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
