// Package server exposes the device query engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/makodevai/gpuq"
	"github.com/makodevai/gpuq/envconfig"
	"github.com/makodevai/gpuq/logutil"
	"github.com/makodevai/gpuq/version"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
	if envconfig.LogLevel() <= slog.LevelDebug {
		gin.SetMode(gin.DebugMode)
	}
}

// Server answers device queries against one backend. A zero Backend resolves
// the process-wide default on every request.
type Server struct {
	backend gpuq.Backend
}

func NewServer(backend gpuq.Backend) *Server {
	return &Server{backend: backend}
}

func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "User-Agent", "Accept", "X-Requested-With"}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(cors.New(corsConfig))

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "gpuq is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "gpuq is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	r.GET("/api/devices", s.DevicesHandler)
	r.GET("/api/devices/:idx", s.DeviceHandler)
	r.GET("/api/providers", s.ProvidersHandler)

	return r
}

// options translates the request's query parameters into query options.
// "provider" and "required" take provider names, "all=true" includes devices
// hidden by *_VISIBLE_DEVICES.
func options(c *gin.Context) ([]gpuq.QueryOption, error) {
	opts := []gpuq.QueryOption{}

	if raw := c.Query("provider"); raw != "" {
		p, err := gpuq.ParseProvider(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gpuq.WithProvider(p))
	}
	if raw := c.Query("required"); raw != "" {
		p, err := gpuq.ParseProvider(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gpuq.WithRequired(p))
	}
	if raw := c.Query("all"); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid all parameter %q", raw)
		}
		opts = append(opts, gpuq.WithVisibleOnly(!all))
	}

	return opts, nil
}

func (s *Server) context(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if s.backend != nil {
		ctx = gpuq.WithBackend(ctx, s.backend)
	}
	return ctx
}

func (s *Server) DevicesHandler(c *gin.Context) {
	opts, err := options(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	devices, err := gpuq.Query(s.context(c), opts...)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}

func (s *Server) DeviceHandler(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid device index %q", c.Param("idx"))})
		return
	}

	opts, err := options(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := gpuq.Get(s.context(c), idx, opts...)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, device)
}

func (s *Server) ProvidersHandler(c *gin.Context) {
	ctx := s.context(c)

	providers := []gin.H{}
	for _, p := range gpuq.Providers() {
		providers = append(providers, gin.H{
			"name":      p.String(),
			"available": gpuq.HasProvider(ctx, p),
		})
	}

	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gpuq.ErrDeviceOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, gpuq.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, gpuq.ErrRuntimeUnavailable),
		errors.Is(err, gpuq.ErrNoDevices),
		errors.Is(err, gpuq.ErrMissingProviders),
		errors.Is(err, gpuq.ErrNoSuitableDevices):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the API server on ln until the listener is closed.
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("starting gpuq server", "version", version.Version, "addr", ln.Addr())
	slog.Debug("server config", "env", envconfig.Values())

	srv := &http.Server{Handler: NewServer(nil).GenerateRoutes()}
	return srv.Serve(ln)
}
