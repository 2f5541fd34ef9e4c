// Package admin is the operator HTTP surface of eppd: health, metrics,
// session listing and poll message injection.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/eppkit/internal/auth"
	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/observability"
	"github.com/danmuck/eppkit/internal/server"
)

const version = "0.1.0"

type Server struct {
	ID      string
	Started time.Time

	svc    *server.Service
	token  auth.Validator
	router *gin.Engine
}

// New builds the admin router for svc. A nil token disables the
// authenticated routes.
func New(id string, svc *server.Service, token auth.Validator, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{ID: id, Started: time.Now(), svc: svc, token: token, router: r}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine { return s.router }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logs.Infof("admin.Server.Run listening addr=%q", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.Started).String(),
			"component": s.ID,
			"version":   version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.svc != nil
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     ready,
			"uptime":    time.Since(s.Started).String(),
			"component": s.ID,
			"version":   version,
		})
	})

	authed := s.router.Group("/", s.requireToken())
	authed.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.svc.Sessions()})
	})

	authed.GET("/objects", func(c *gin.Context) {
		store := s.svc.Store()
		if store == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no object store"})
			return
		}
		c.JSON(http.StatusOK, store.Counts())
	})

	authed.GET("/poll/:client", func(c *gin.Context) {
		n := s.svc.Notifier()
		if n == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no poll queue"})
			return
		}
		size, err := n.Queue().Size(c.Request.Context(), c.Param("client"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"client_id": c.Param("client"), "queued": size})
	})

	authed.POST("/poll/:client", func(c *gin.Context) {
		n := s.svc.Notifier()
		if n == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no poll queue"})
			return
		}
		var body struct {
			Kind    string `json:"kind"`
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.Kind == "" {
			body.Kind = "notice"
		}
		rec, err := n.Notify(c.Request.Context(), c.Param("client"), body.Kind, body.Message, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": rec.ID, "queued_at": rec.QueuedAt})
	})
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || s.token == nil || s.token.Validate(strings.TrimSpace(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
