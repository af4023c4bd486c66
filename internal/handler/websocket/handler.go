package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"team-meetings/internal/domain"
	"team-meetings/internal/hub"
	"team-meetings/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TokenResolver 将 bearer token 解析为用户
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*domain.User, error)
}

// WebSocketHandler 负责握手认证、升级连接和注册客户端
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	auth     TokenResolver
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。
// allowedOrigins 为空时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, auth TokenResolver, allowedOrigins []string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if auth == nil {
		panic("TokenResolver cannot be nil for WebSocketHandler")
	}

	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		hub:  h,
		auth: auth,
	}
}

// HandleConnection 处理 GET /ws。
// token 来自 Authorization 头或 token 查询参数，认证失败时在升级前返回 401。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithField("remote_addr", c.ClientIP())

	// 1. 认证
	token, err := middleware.BearerToken(c.GetHeader("Authorization"))
	if errors.Is(err, middleware.ErrMissingAuthHeader) {
		token = c.Query("token")
	} else if err != nil {
		logCtx.WithError(err).Warn("WS Handler: rejecting handshake")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token format"})
		return
	}
	if token == "" {
		logCtx.Warn("WS Handler: missing token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication token required"})
		return
	}
	user, err := h.auth.ResolveToken(c.Request.Context(), token)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
		return
	}
	logCtx = logCtx.WithField("user_id", user.ID)

	// 2. 升级连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写入了 HTTP 错误响应
		logCtx.WithError(err).Warn("WS Handler: failed to upgrade connection")
		return
	}

	// 3. 注册客户端并启动读写 goroutine
	client := hub.NewClient(h.hub, conn, user)
	client.Run()
	logCtx.WithField("conn_id", client.ID()).Info("WS Handler: client connected")
}
