// Package middleware 提供HTTP中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AuthConfig 运维 API 的静态 Key 列表
type AuthConfig struct {
	APIKeys []string `json:"api_keys"`
	Enabled bool     `json:"enabled"`
}

// ContextKeyAPIKey 认证通过后写入 gin.Context 的 Key
const ContextKeyAPIKey = "api_key"

// APIKeyAuth 从 X-API-Key 或 Authorization: Bearer 读取 Key。
// 缺少 Key 返回 401，Key 不在列表中返回 403。
func APIKeyAuth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		allowed[k] = struct{}{}
	}

	return func(c *gin.Context) {
		key := extractKey(c)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		}
		if key == "" {
			logger.Warn("api key missing", fields...)
			deny(c, http.StatusUnauthorized, "unauthorized", "missing X-API-Key or Bearer token")
			return
		}
		if _, ok := allowed[key]; !ok {
			logger.Warn("api key rejected", append(fields, zap.String("key", maskAPIKey(key)))...)
			deny(c, http.StatusForbidden, "forbidden", "invalid api key")
			return
		}
		c.Set(ContextKeyAPIKey, key)
		c.Next()
	}
}

func deny(c *gin.Context, code int, kind, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": kind, "message": msg})
}

func extractKey(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader("X-API-Key")); k != "" {
		return k
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// maskAPIKey 只保留首尾各 4 个字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
}

// RateLimit 按客户端IP的令牌桶限流
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	every := rate.Limit(float64(cfg.RequestsPerMin) / 60)

	limiters := xsync.NewMapOf[string, *rate.Limiter]()
	get := func(ip string) *rate.Limiter {
		l, _ := limiters.LoadOrCompute(ip, func() *rate.Limiter { return rate.NewLimiter(every, burst) })
		return l
	}

	return func(c *gin.Context) {
		if !get(c.ClientIP()).Allow() {
			deny(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
			return
		}
		c.Next()
	}
}
