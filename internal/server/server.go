// Package server exposes the calculator over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rangeScope/internal/model"
	"rangeScope/internal/source"
)

const shutdownTimeout = 10 * time.Second

// Calculator computes position returns.
type Calculator interface {
	Calculate(ctx context.Context, input model.PositionInput) (model.APRResult, error)
}

// HealthChecker reports indexed-source freshness per chain.
type HealthChecker interface {
	Health(ctx context.Context, chainID uint64) source.Health
}

// PoolSearcher finds pools by symbol or address.
type PoolSearcher interface {
	SearchPools(ctx context.Context, chainID uint64, query string, limit int) ([]model.Pool, error)
}

// Recorder receives served requests.
type Recorder interface {
	HTTPRequest(route string, status int, took time.Duration)
}

// Config wires the server's dependencies. Metrics, Recorder and Logger are
// optional.
type Config struct {
	Calculator Calculator
	Health     HealthChecker
	Pools      PoolSearcher
	// Chains lists the supported chain ids. Empty accepts any chain.
	Chains   []uint64
	Metrics  http.Handler
	Recorder Recorder
	Logger   *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	calc     Calculator
	health   HealthChecker
	pools    PoolSearcher
	chains   map[uint64]struct{}
	metrics  http.Handler
	recorder Recorder
	logger   *zap.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chains := make(map[uint64]struct{}, len(cfg.Chains))
	for _, id := range cfg.Chains {
		chains[id] = struct{}{}
	}
	return &Server{
		calc:     cfg.Calculator,
		health:   cfg.Health,
		pools:    cfg.Pools,
		chains:   chains,
		metrics:  cfg.Metrics,
		recorder: cfg.Recorder,
		logger:   logger,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/apr", s.calculate)
	r.GET("/health/:chainId", s.chainHealth)
	r.GET("/pools/search", s.searchPools)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		took := time.Since(start)
		status := c.Writer.Status()
		if s.recorder != nil {
			s.recorder.HTTPRequest(route, status, took)
		}
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("took", took),
		)
	}
}

func (s *Server) supported(chainID uint64) bool {
	if len(s.chains) == 0 {
		return true
	}
	_, ok := s.chains[chainID]
	return ok
}
