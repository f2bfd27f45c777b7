package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/squadpage/mailroom/pkg/config"
	"github.com/squadpage/mailroom/pkg/store"
)

const tokenHeader = "X-Mailroom-Token"

// BatchRunner is the trigger surface the HTTP endpoints call into.
// Calls may overlap freely; the store's conditional claim keeps
// concurrent runs safe.
type BatchRunner interface {
	RunBatchOnce(ctx context.Context) error
}

// Server exposes the external trigger endpoints: the cron trigger, the
// manual admin trigger and a health probe.
type Server struct {
	router *gin.Engine
	worker BatchRunner
	repo   store.OutboxStore
	cfg    config.ServerSettings
}

func NewServer(worker BatchRunner, repo store.OutboxStore, cfg config.ServerSettings) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router: gin.New(),
		worker: worker,
		repo:   repo,
		cfg:    cfg,
	}
	s.router.Use(gin.Recovery())

	s.router.GET("/healthz", s.health)
	s.router.POST("/v1/outbox/run", tokenAuth(cfg.CronToken), s.runBatch)
	s.router.POST("/v1/admin/outbox/run", tokenAuth(cfg.AdminToken), s.runBatch)
	return s
}

// Router returns the underlying engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run() error {
	return s.router.Run(s.cfg.ListenAddr)
}

// tokenAuth guards a route with a shared secret. A route whose token is
// unconfigured is disabled rather than open.
func tokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "trigger disabled"})
			return
		}
		if c.GetHeader(tokenHeader) != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) runBatch(c *gin.Context) {
	// Per-job failures stay inside the worker; only a failed claim makes
	// the trigger itself fail.
	if err := s.worker.RunBatchOnce(c.Request.Context()); err != nil {
		logrus.WithError(err).Error("trigger run failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbox temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) health(c *gin.Context) {
	pending, err := s.repo.PendingCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pending_jobs": pending})
}
