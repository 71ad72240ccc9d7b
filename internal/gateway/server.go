// Package gateway exposes the link arena over HTTP: health and metrics,
// the websocket link endpoint, connection state and device-initiated
// indications.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/pdlp/internal/device"
	"github.com/danmuck/pdlp/internal/link"
	"github.com/danmuck/pdlp/internal/observability"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// Device is the simulated application behind the link, when one runs.
type Device interface {
	State() device.State
	SetReading(t services.SensorType, r device.Reading) error
}

// Options wires the gateway to the link arena and its optional surfaces.
// Link and Device may be nil.
type Options struct {
	ID          string
	Addr        string
	CORSOrigins []string
	Arena       *link.Arena
	// Link serves the websocket upgrade on /link.
	Link   http.Handler
	Device Device
}

// Server is the HTTP front of a pdlpd process.
type Server struct {
	opts     Options
	router   *gin.Engine
	appeared time.Time
}

// New builds the gin router with recovery, request logging, metrics and
// CORS, then registers every route.
func New(opts Options) *Server {
	if opts.ID == "" {
		opts.ID = "pdlpd"
	}
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{opts: opts, router: r, appeared: time.Now()}
	s.registerRoutes()
	return s
}

// HTTPRouter exposes the router for tests and embedding.
func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on the configured address until ctx ends, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("gateway listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
