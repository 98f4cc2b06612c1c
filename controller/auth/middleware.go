package auth

import (
	"errors"
	"net/http"
	"strings"

	"live-notify-service/controller/respond"
	"live-notify-service/logger"

	"github.com/gin-gonic/gin"
)

const (
	RoleKey       = "role"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	APIKeyHeader  = "X-API-KEY"
)

// BearerAuth 校验 Authorization 头，并将调用者的用户ID和角色写入 gin 上下文
func BearerAuth(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abort(c, http.StatusUnauthorized, errors.New("missing authorization header"))
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abort(c, http.StatusUnauthorized, errors.New("invalid authorization format"))
			return
		}

		claims, err := tokens.Validate(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			abort(c, http.StatusUnauthorized, err)
			return
		}

		c.Set(logger.FieldUserID, claims.UserID)
		c.Set(RoleKey, claims.Role)
		lg := logger.Ctx(c.Request.Context()).With().Str(logger.FieldUserID, claims.UserID).Logger()
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), lg))
		c.Next()
	}
}

// APIKeyAuth 内部接口的 API Key 认证，供业务服务调用
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || c.GetHeader(APIKeyHeader) != apiKey {
			abort(c, http.StatusUnauthorized, errors.New("invalid api key"))
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(logger.FieldUserID)
}

func GetRole(c *gin.Context) string {
	return c.GetString(RoleKey)
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, respond.RespErr(respond.NewAuthError(err.Error()), 0, respond.HttpsCodeUnauthorized))
}
