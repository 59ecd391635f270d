// Package server is the internal HTTP surface: the MTA's sender check,
// health and metrics. It binds to a loopback-only address; nothing here
// is exposed to users.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/config"
	"github.com/hostedmail/doms/internal/sender"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	checker *sender.Checker
	log     *zap.Logger
}

type Params struct {
	fx.In

	Engine  *gin.Engine
	Checker *sender.Checker
	Log     *zap.Logger
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:  p.Engine,
		checker: p.Checker,
		log:     p.Log.Named("server").With(zap.String("component", "server")),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	internal := s.engine.Group("/internal")
	internal.GET("/hello", s.hello)
	internal.GET("/check/sender", s.checkSender)
	internal.POST("/check/sender", s.checkSender)
}

func (s *Server) hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Hello": "world"})
}

type checkSenderRequest struct {
	User  string `json:"user" form:"user"`
	Email string `json:"email" form:"email"`
}

// checkSender answers the MTA's sender-address check. The caller treats
// anything but {"result":"OK"} as a rejection, so errors are reported in
// the body rather than the status code.
func (s *Server) checkSender(c *gin.Context) {
	var req checkSenderRequest
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.bad(c, "No data")
			return
		}
	} else if err := c.ShouldBindQuery(&req); err != nil {
		s.bad(c, "No data")
		return
	}
	if req.User == "" || req.Email == "" {
		s.bad(c, "User or email missing or blank")
		return
	}

	ok, reason := s.checker.Check(req.User, req.Email)
	if !ok {
		s.log.Debug("sender denied",
			zap.String("user", req.User),
			zap.String("email", req.Email),
			zap.String("reason", reason),
		)
		s.bad(c, reason)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "OK", "message": reason})
}

func (s *Server) bad(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"result": "BAD", "error": message})
}
