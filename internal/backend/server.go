// Package backend implements the labeling tool's ML backend contract over
// HTTP: a health check, a setup handshake, and a prediction endpoint that
// runs the detection model on referenced task images.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/logging"
	"github.com/urbancanopy/treedetect-go/internal/observability"
	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

const (
	// predictionCacheTTL bounds how long a mapped prediction is reused for
	// the same image reference. The labeling tool retries /predict freely
	// while annotators page through tasks.
	predictionCacheTTL = 5 * time.Minute

	shutdownTimeout = 10 * time.Second
)

// Detector runs the model on encoded image bytes. Satisfied by *yolo.Detector.
type Detector interface {
	DetectBytes(ctx context.Context, data []byte) (yolo.Result, error)
	ModelVersion() string
}

// Fetcher resolves task image references to bytes. Satisfied by *spaces.Client.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Server is the ML backend HTTP server.
type Server struct {
	echo     *echo.Echo
	settings *conf.Settings
	detector Detector
	fetcher  Fetcher
	metrics  *observability.Metrics
	cache    *cache.Cache
	log      *slog.Logger
}

// New assembles the server with routes and middleware. It does not listen
// yet; call Start.
func New(settings *conf.Settings, detector Detector, fetcher Fetcher, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		settings: settings,
		detector: detector,
		fetcher:  fetcher,
		metrics:  metrics,
		cache:    cache.New(predictionCacheTTL, 2*predictionCacheTTL),
		log:      logging.ForService("backend"),
	}

	e.Use(middleware.Recover())
	e.Use(s.metricsMiddleware)

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.echo.GET("/", s.handleHealth)
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/setup", s.handleSetup)
	s.echo.POST("/predict", s.handlePredict)
	s.echo.POST("/webhook", s.handleWebhook)
	s.echo.POST("/train", s.handleWebhook)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// metricsMiddleware records request counts and latency per route.
func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.metrics == nil {
			return next(c)
		}
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else {
				status = http.StatusInternalServerError
			}
		}

		path := c.Path()
		s.metrics.HTTP.RequestsTotal.WithLabelValues(
			c.Request().Method, path, strconv.Itoa(status)).Inc()
		s.metrics.HTTP.RequestDuration.WithLabelValues(path).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// Start listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.settings.Server.Host, s.settings.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.log.Info("ML backend listening", "addr", addr, "model_version", s.detector.ModelVersion())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
