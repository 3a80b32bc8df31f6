// Package routes assembles the gin engine.
package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"poll-decision-backend/config"
	"poll-decision-backend/handlers"
	"poll-decision-backend/logger"
	"poll-decision-backend/metrics"
	"poll-decision-backend/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are what the router needs to serve requests.
type Deps struct {
	Config   config.HTTP
	DB       *gorm.DB
	Polls    *service.PollLifecycle
	Limiter  handlers.Limiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
	Version  string
}

// SetupRouter builds the engine with middleware and every route.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestID(), logger.Gin(d.Log.Named("access")), handlers.Metrics(d.Metrics))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     d.Config.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.ActorHeader, handlers.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handlers.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	health := handlers.NewHealthHandler(d.DB, d.Version)
	api := router.Group("/api")
	{
		api.GET("/health", health.Health)
		api.GET("/status", health.Status)

		limited := api.Group("", handlers.RateLimit(d.Limiter, d.Log))
		handlers.NewPollHandler(d.Polls, d.Log).Register(limited)
	}
	return router
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains for up to five seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down http server")
	return s.srv.Shutdown(shutdownCtx)
}
