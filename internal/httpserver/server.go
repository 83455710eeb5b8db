package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
)

// Probes 运维探针；Ready 为 nil 时始终就绪，Metrics 为 nil 时不挂指标路由
type Probes struct {
	Ready       func() bool
	Metrics     http.Handler
	MetricsPath string
}

// Server 运维 HTTP 服务
type Server struct {
	engine *gin.Engine
	srv    *http.Server
}

func New(cfg cfgpkg.HTTPConfig, p Probes) *Server {
	e := gin.New()
	e.Use(gin.Recovery())
	mountProbes(e, p)

	return &Server{
		engine: e,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      e,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

func mountProbes(e *gin.Engine, p Probes) {
	e.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	e.GET("/readyz", func(c *gin.Context) {
		if p.Ready != nil && !p.Ready() {
			c.String(http.StatusServiceUnavailable, "not-ready")
			return
		}
		c.String(http.StatusOK, "ready")
	})
	if p.Metrics == nil {
		return
	}
	path := p.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	e.GET(path, gin.WrapH(p.Metrics))
}

// Register 追加路由，须在 Start/Serve 之前
func (s *Server) Register(fn func(r *gin.Engine)) { fn(s.engine) }

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start 阻塞；Shutdown 引起的退出返回 nil
func (s *Server) Start() error { return ignoreClosed(s.srv.ListenAndServe()) }

// Serve 在给定监听上服务，语义同 Start
func (s *Server) Serve(ln net.Listener) error { return ignoreClosed(s.srv.Serve(ln)) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
