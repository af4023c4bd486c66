package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"team-meetings/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 上下文中保存认证信息的键
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// TokenResolver 校验 token 并返回对应的用户
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*domain.User, error)
}

// ErrMissingAuthHeader 表示缺少 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// ErrMalformedAuthHeader 表示 Authorization 头不是 "Bearer <token>" 格式
var ErrMalformedAuthHeader = errors.New("malformed Authorization header")

// Auth 返回一个 Gin 中间件，验证 bearer token 并将用户写入上下文。
func Auth(resolver TokenResolver) gin.HandlerFunc {
	if resolver == nil {
		panic("TokenResolver cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 提取 Token
		tokenStr, err := extractToken(c)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: rejecting request")
			message := "Authorization header is required"
			if errors.Is(err, ErrMalformedAuthHeader) {
				message = "Invalid token format"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message})
			return
		}

		// 2. 解析为用户 (签名、过期、用户是否存在)
		user, err := resolver.ResolveToken(c.Request.Context(), tokenStr)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		// 3. 写入上下文
		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		logrus.WithField("user_id", user.ID).Debug("Auth middleware: User authenticated via JWT")

		c.Next()
	}
}

// extractToken 从 Authorization 头提取 Bearer Token
func extractToken(c *gin.Context) (string, error) {
	return BearerToken(c.GetHeader("Authorization"))
}

// BearerToken 解析 "Bearer <token>" 格式的 Authorization 头，REST 和中继握手共用。
// 头为空时返回 ErrMissingAuthHeader，格式不对时返回 ErrMalformedAuthHeader。
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}
