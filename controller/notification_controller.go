package controller

import (
	"net/http"

	"live-notify-service/controller/auth"
	"live-notify-service/controller/request"
	"live-notify-service/controller/respond"
	pushcenter "live-notify-service/service/push_center"
	"live-notify-service/tool"

	"github.com/gin-gonic/gin"
)

// ListNotifications godoc
// @Summary 通知历史
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码，默认 1" default(1)
// @Param pageSize query int false "每页条数，默认 20" default(20)
// @Param unreadOnly query bool false "仅返回未读"
// @Success 200 {object} respond.Response{data=models.NotificationPage} "分页结果"
// @Failure 400 {object} respond.Response "参数错误"
// @Router /v1/notifications [get]
func ListNotifications(c *gin.Context) {
	var (
		t     int64 = tool.MakeTimestamp()
		query request.NotificationListQuery
	)
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err, t)
		return
	}

	page, err := notifications.List(c.Request.Context(), auth.GetUserID(c),
		tool.IntWithDefault(query.Page, 1), tool.IntWithDefault(query.PageSize, 20), query.UnreadOnly)
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(page, tool.MakeTimestamp()-t))
}

// GetNotificationUnreadCount godoc
// @Summary 未读通知数
// @Description 服务端权威计数，客户端用它覆盖本地乐观计数
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} respond.Response "data.count"
// @Router /v1/notifications/unread-count [get]
func GetNotificationUnreadCount(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	count, err := notifications.CountUnread(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(gin.H{"count": count}, tool.MakeTimestamp()-t))
}

// MarkNotificationRead godoc
// @Summary 标记单条通知已读
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param notificationId path string true "通知ID"
// @Success 200 {object} respond.Response "成功响应"
// @Failure 404 {object} respond.Response "通知不存在"
// @Router /v1/notifications/{notificationId}/read [post]
func MarkNotificationRead(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	if err := notifications.MarkRead(c.Request.Context(), auth.GetUserID(c), c.Param("notificationId")); err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(gin.H{"notificationID": c.Param("notificationId")}, tool.MakeTimestamp()-t))
}

// MarkAllNotificationsRead godoc
// @Summary 全部通知标记已读
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} respond.Response "data.updated"
// @Router /v1/notifications/read-all [post]
func MarkAllNotificationsRead(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	n, err := notifications.MarkAllRead(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(gin.H{"updated": n}, tool.MakeTimestamp()-t))
}

// DeleteNotification godoc
// @Summary 删除通知
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param notificationId path string true "通知ID"
// @Success 200 {object} respond.Response "成功响应"
// @Failure 404 {object} respond.Response "通知不存在"
// @Router /v1/notifications/{notificationId} [delete]
func DeleteNotification(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	if err := notifications.Delete(c.Request.Context(), auth.GetUserID(c), c.Param("notificationId")); err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(gin.H{"notificationID": c.Param("notificationId")}, tool.MakeTimestamp()-t))
}

// PublishNotification godoc
// @Summary 接收业务通知
// @Description 由评价、审核、预约等业务服务调用。notificationId 为幂等键，重复投递只存储和推送一次。
// @Tags Internal
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body pushcenter.PublishRequest true "通知内容"
// @Success 200 {object} respond.Response{data=pushcenter.PublishResult} "已存储"
// @Failure 400 {object} respond.Response "参数错误"
// @Failure 401 {object} respond.Response "认证失败"
// @Router /v1/internal/notifications [post]
func PublishNotification(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel pushcenter.PublishRequest
	)
	if err := c.ShouldBindJSON(&requestModel); err != nil {
		badRequest(c, err, t)
		return
	}

	res, err := publisher.Publish(c.Request.Context(), requestModel)
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(res, tool.MakeTimestamp()-t))
}
