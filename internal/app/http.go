package app

import (
	"net/http"

	cfgpkg "github.com/taoyao-code/packetcmd/internal/config"
	"github.com/taoyao-code/packetcmd/internal/httpserver"
)

// NewHTTPServer 未启用指标时不挂指标路由
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, readyFn func() bool) *httpserver.Server {
	p := httpserver.Probes{Ready: readyFn, MetricsPath: cfg.Metrics.Path}
	if cfg.Metrics.Enable {
		p.Metrics = metricsHandler
	}
	return httpserver.New(cfg.HTTP, p)
}
