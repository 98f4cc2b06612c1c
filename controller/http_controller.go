package controller

import (
	"context"
	"errors"
	"net/http"

	"live-notify-service/controller/auth"
	"live-notify-service/controller/respond"
	"live-notify-service/logger"
	"live-notify-service/models"
	pushcenter "live-notify-service/service/push_center"
	"live-notify-service/service/store_service"
	"live-notify-service/tool"

	_ "live-notify-service/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// ConversationService REST 兜底接口背后的历史消息服务
type ConversationService interface {
	GetHistory(ctx context.Context, userID, conversationID, cursor string, limit int, direction string) (*models.MessagePage, error)
	MarkRead(ctx context.Context, userID, conversationID, messageID string) (*models.ReadResult, error)
	UnreadCount(ctx context.Context, userID, conversationID string) (int64, error)
}

type NotificationService interface {
	List(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*models.NotificationPage, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, notificationID string) error
}

type NotificationPublisher interface {
	Publish(ctx context.Context, req pushcenter.PublishRequest) (*pushcenter.PublishResult, error)
}

// Deps HTTP 接口依赖的服务
type Deps struct {
	Tokens        *auth.TokenManager
	APIKey        string
	Conversations ConversationService
	Notifications NotificationService
	Publisher     NotificationPublisher
	// socket.io 处理器，设置后挂载在 LivePath 下
	Live     http.Handler
	LivePath string
	// /health 使用的存储就绪检查
	Health func(ctx context.Context) error
}

var (
	conversations ConversationService
	notifications NotificationService
	publisher     NotificationPublisher
	healthCheck   func(ctx context.Context) error
)

// NewRouter 创建 gin 引擎并注册全部路由
func NewRouter(deps *Deps) *gin.Engine {
	conversations = deps.Conversations
	notifications = deps.Notifications
	publisher = deps.Publisher
	healthCheck = deps.Health

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(Cors())
	router.Use(logger.GinMiddleware(logger.Component("http")))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", Health)

	if deps.Live != nil {
		path := tool.StringWithDefault(deps.LivePath, "/socket.io/")
		Handle(router, []string{http.MethodGet, http.MethodPost}, path+"*any", gin.WrapH(deps.Live))
	}

	v1 := router.Group("/v1")
	{
		user := v1.Group("", auth.BearerAuth(deps.Tokens))
		{
			user.GET("/conversations/:conversationId/messages", GetConversationMessages)
			user.PUT("/conversations/:conversationId/read", MarkConversationRead)
			user.GET("/conversations/:conversationId/unread-count", GetConversationUnreadCount)

			user.GET("/notifications", ListNotifications)
			user.GET("/notifications/unread-count", GetNotificationUnreadCount)
			user.POST("/notifications/read-all", MarkAllNotificationsRead)
			user.POST("/notifications/:notificationId/read", MarkNotificationRead)
			user.DELETE("/notifications/:notificationId", DeleteNotification)
		}

		internal := v1.Group("/internal", auth.APIKeyAuth(deps.APIKey))
		{
			internal.POST("/notifications", PublishNotification)
		}
	}

	return router
}

func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Header("Access-Control-Allow-Headers", "Content-Type,AccessToken,X-CSRF-Token, Authorization,X-API-KEY,X-Request-ID")
		c.Header("Access-Control-Allow-Credentials", "true")
		if method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func Handle(r *gin.Engine, httpMethods []string, relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes {
	var routes gin.IRoutes
	for _, httpMethod := range httpMethods {
		routes = r.Handle(httpMethod, relativePath, handlers...)
	}
	return routes
}

// Health godoc
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} respond.Response "成功响应"
// @Failure 503 {object} respond.Response "存储不可用"
// @Router /health [get]
func Health(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()
	if healthCheck != nil {
		if err := healthCheck(c.Request.Context()); err != nil {
			c.JSONP(http.StatusServiceUnavailable, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
			return
		}
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(gin.H{"status": "成功响应"}, tool.MakeTimestamp()-t))
}

// fail 将服务层错误映射为 HTTP 状态码和响应码
func fail(c *gin.Context, err error, t int64) {
	status, code := http.StatusInternalServerError, respond.HttpsCodeError
	switch {
	case errors.Is(err, store_service.ErrInvalidInput), errors.Is(err, pushcenter.ErrInvalidRequest):
		status, code = http.StatusBadRequest, respond.HttpsCodeBadRequest
	case errors.Is(err, store_service.ErrNotParticipant):
		status, code = http.StatusForbidden, respond.HttpsCodeForbidden
	case errors.Is(err, store_service.ErrNotFound):
		status, code = http.StatusNotFound, respond.HttpsCodeNotFound
	default:
		lg := logger.Ctx(c.Request.Context())
		lg.Error().Err(err).Msg("request failed")
	}
	c.JSONP(status, respond.RespErr(err, tool.MakeTimestamp()-t, code))
}

func badRequest(c *gin.Context, err error, t int64) {
	c.JSONP(http.StatusBadRequest, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeBadRequest))
}
