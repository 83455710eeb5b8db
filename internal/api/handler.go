package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/packetcmd/internal/gateway"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
	redisstore "github.com/taoyao-code/packetcmd/internal/storage/redis"
)

// DeadLetterStore 死信查询（redis DeadLetters 实现）
type DeadLetterStore interface {
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, n int64) ([]redisstore.DeadLetter, error)
	Clear(ctx context.Context) error
}

// Handler 运维只读接口
type Handler struct {
	gw     *gateway.Gateway
	dead   DeadLetterStore
	logger *zap.Logger
}

// NewHandler 创建处理器；dead 为 nil 时死信接口返回 503
func NewHandler(gw *gateway.Gateway, dead DeadLetterStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gw: gw, dead: dead, logger: logger}
}

// ListCommands 命令目录
func (h *Handler) ListCommands(c *gin.Context) {
	cat := h.gw.Catalog()
	c.JSON(http.StatusOK, gin.H{"commands": cat.Commands, "default": cat.Default})
}

// LookupTypeID 校验类型ID并查找对应命令
// GET /api/typeids/:hex
func (h *Handler) LookupTypeID(c *gin.Context) {
	id, err := pktcmd.ParseTypeIDHex(c.Param("hex"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "valid": false})
		return
	}
	resp := gin.H{"valid": true, "type_id": id.String(), "depth": id.Depth()}
	if cmd, ok := h.gw.Catalog().FindByTypeID(id); ok {
		resp["command"] = cmd
	}
	c.JSON(http.StatusOK, resp)
}

// ListSessions 在线会话统计
func (h *Handler) ListSessions(c *gin.Context) {
	snap := h.gw.Registry().Snapshot()
	c.JSON(http.StatusOK, gin.H{"count": len(snap), "sessions": snap})
}

// GetSession 单个会话统计
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.gw.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s.Stats())
}

// CountDeadLetters 死信条数
func (h *Handler) CountDeadLetters(c *gin.Context) {
	if !h.deadEnabled(c) {
		return
	}
	n, err := h.dead.Count(c.Request.Context())
	if err != nil {
		h.fail(c, "count dead letters", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n, "dropped": h.gw.DeadLetterDrops()})
}

// ListDeadLetters 最近的死信
// GET /api/deadletters?limit=50
func (h *Handler) ListDeadLetters(c *gin.Context) {
	if !h.deadEnabled(c) {
		return
	}
	limit := int64(50)
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in [1, 1000]"})
			return
		}
		limit = n
	}
	list, err := h.dead.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "list dead letters", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "dead_letters": list})
}

// ClearDeadLetters 清空死信
func (h *Handler) ClearDeadLetters(c *gin.Context) {
	if !h.deadEnabled(c) {
		return
	}
	if err := h.dead.Clear(c.Request.Context()); err != nil {
		h.fail(c, "clear dead letters", err)
		return
	}
	h.logger.Info("dead letters cleared", zap.String("remote_addr", c.ClientIP()))
	c.Status(http.StatusNoContent)
}

func (h *Handler) deadEnabled(c *gin.Context) bool {
	if h.dead == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": redisstore.ErrDisabled.Error()})
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	h.logger.Error(op+" failed", zap.Error(err))
	code := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
