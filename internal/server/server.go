// Package server exposes a read-only HTTP view of the switch state cache and
// keeps the cache fresh by re-running session initialization on a timer.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cxlctl/internal/observability"
	"github.com/danmuck/cxlctl/internal/switchstate"
)

const shutdownTimeout = 5 * time.Second

// Refresher repopulates the cache. client.Session satisfies it.
type Refresher interface {
	Init(ctx context.Context) error
}

type Options struct {
	Addr        string
	CorsOrigins []string
	Refresher   Refresher
	Refresh     time.Duration
}

type Server struct {
	addr     string
	state    *switchstate.State
	refresh  Refresher
	interval time.Duration
	router   *gin.Engine
	registry *prometheus.Registry
	started  time.Time
	log      zerolog.Logger

	mu          sync.Mutex
	lastRefresh time.Time
	refreshErr  error
}

func New(state *switchstate.State, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(newCacheCollector(state))

	s := &Server{
		addr:     opts.Addr,
		state:    state,
		refresh:  opts.Refresher,
		interval: opts.Refresh,
		router:   r,
		registry: reg,
		started:  time.Now(),
		log:      log.With().Str("component", "server").Logger(),
	}
	r.Use(observability.ViewLogger(s.log, s.cacheAge))
	r.Use(observability.ViewMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run refreshes the cache once, then serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.refreshOnce(ctx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("serving cache view")
		errc <- srv.ListenAndServe()
	}()

	var ticks <-chan time.Time
	if s.refresh != nil && s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		ticks = t.C
	}

	for {
		select {
		case <-ticks:
			s.refreshOnce(ctx)
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
}

func (s *Server) refreshOnce(ctx context.Context) {
	if s.refresh == nil {
		return
	}
	start := time.Now()
	err := s.refresh.Init(ctx)
	if err != nil {
		s.log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("cache refresh incomplete")
	} else {
		s.log.Debug().Dur("duration", time.Since(start)).Msg("cache refreshed")
	}

	s.mu.Lock()
	s.lastRefresh = time.Now()
	s.refreshErr = err
	s.mu.Unlock()
}

func (s *Server) refreshStatus() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh, s.refreshErr
}

// cacheAge is the time since the last refresh, or 0 before the first one.
func (s *Server) cacheAge() time.Duration {
	last, _ := s.refreshStatus()
	if last.IsZero() {
		return 0
	}
	return time.Since(last)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
