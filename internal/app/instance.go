package app

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/packetcmd/internal/metrics"
)

const serverIDEnv = "PCMD_SERVER_ID"

// GenerateServerID 实例标识：PCMD_SERVER_ID 优先，否则 packetcmd-<主机名>-<随机8位>
func GenerateServerID() string {
	if id := strings.TrimSpace(os.Getenv(serverIDEnv)); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	host = strings.ToLower(strings.ReplaceAll(host, ".", "-"))
	return "packetcmd-" + host + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewMetrics 应用指标统一带 server_id 常量标签；serverID 为空时不加
func NewMetrics(serverID string) (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	var r prometheus.Registerer = reg
	if serverID != "" {
		r = prometheus.WrapRegistererWith(prometheus.Labels{"server_id": serverID}, reg)
	}
	return reg, metrics.NewAppMetrics(r)
}
