// Package server exposes the discovery map and score over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/virasat/internal/discovery"
	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/mapview"
	"github.com/ppiankov/virasat/internal/metrics"
	"github.com/ppiankov/virasat/internal/model"
)

// Repository is the read side of the discovery store
type Repository interface {
	LoadAll(ctx context.Context) (model.DiscoveryCollection, error)
}

// Server serves the map API
type Server struct {
	echo    *echo.Echo
	store   Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Options configures a Server
type Options struct {
	Store    Repository
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   *slog.Logger
}

// New creates the server and registers its routes
func New(opts Options) *Server {
	s := &Server{
		echo:    echo.New(),
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  logging.Module(opts.Logger, "server"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			s.logger.Log(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))

	s.routes(opts.Gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	api := s.echo.Group("/api")
	api.GET("/markers", s.handleMarkers)
	api.GET("/markers.geojson", s.handleGeoJSON)
	api.GET("/discoveries", s.handleDiscoveries)
	api.GET("/discoveries/:id", s.handleCard)
	api.GET("/score", s.handleScore)

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) load(c echo.Context) (model.DiscoveryCollection, error) {
	all, err := s.store.LoadAll(c.Request().Context())
	if err != nil {
		var pe *discovery.PersistenceError
		if errors.As(err, &pe) {
			return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "discovery store unavailable").SetInternal(err)
		}
		return nil, err
	}
	s.metrics.SetDiscoveries(len(all))
	return all, nil
}

func (s *Server) handleMarkers(c echo.Context) error {
	all, err := s.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mapview.Build(model.HiddenSites(), all))
}

func (s *Server) handleGeoJSON(c echo.Context) error {
	all, err := s.load(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/geo+json")
	return c.JSON(http.StatusOK, mapview.Build(model.HiddenSites(), all).GeoJSON())
}

func (s *Server) handleDiscoveries(c echo.Context) error {
	all, err := s.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, all)
}

func (s *Server) handleCard(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid discovery id")
	}

	all, err := s.load(c)
	if err != nil {
		return err
	}

	card, ok := mapview.CardFor(all, id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, discovery.ErrNotFound.Error())
	}
	return c.JSON(http.StatusOK, card)
}

func (s *Server) handleScore(c echo.Context) error {
	all, err := s.load(c)
	if err != nil {
		return err
	}
	header := mapview.Header(all)
	return c.JSON(http.StatusOK, map[string]any{
		"title":       header.Title,
		"score":       header.Score,
		"label":       header.Label,
		"discoveries": len(all),
	})
}
