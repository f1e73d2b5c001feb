package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tagops/visitflow/internal/config"
	"github.com/tagops/visitflow/internal/http/middleware"
	"github.com/tagops/visitflow/internal/repository"
	"github.com/tagops/visitflow/internal/service/visit"
)

// Server is the intake API: scanners post entry/exit scans here, and each
// accepted scan commits a visit mutation plus its outbox event atomically.
type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, chDB *sqlx.DB, rds *redis.Client) *Server {
	visitsRepo := repository.NewVisitsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	archiveRepo := repository.NewArchiveRepository(chDB)

	visitSvc := visit.New(mysqlDB, visitsRepo, outboxRepo)

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:  rds,
		RPS:    cfg.RateLimit.RPS,
		Window: time.Second,
	})

	e.POST("/entry-scan", entryScanHandler(visitSvc), rlMW)
	e.POST("/exit-scan", exitScanHandler(visitSvc), rlMW)
	e.GET("/v1/events", listEventsHandler(archiveRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error            { return s.e.Start(addr) }
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
func (s *Server) Handler() http.Handler              { return s.e }
