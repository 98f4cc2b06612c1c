package controller

import (
	"errors"
	"net/http"

	"live-notify-service/controller/auth"
	"live-notify-service/controller/request"
	"live-notify-service/controller/respond"
	"live-notify-service/tool"

	"github.com/gin-gonic/gin"
)

// GetConversationMessages godoc
// @Summary 会话历史消息
// @Description 按 (sentAt, messageID) 排序返回一页消息。将 nextCursor 作为 cursor 传回可继续翻页；direction=forward 向更新的消息翻页（重连后补齐缺口使用）。
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param conversationId path string true "会话ID（预约/请求ID）"
// @Param cursor query string false "不含的起始位置，格式 sentAt_messageID"
// @Param limit query int false "每页条数，默认 50，最大 100"
// @Param direction query string false "backward（默认）或 forward"
// @Success 200 {object} respond.Response{data=models.MessagePage} "分页结果"
// @Failure 400 {object} respond.Response "参数错误"
// @Failure 401 {object} respond.Response "认证失败"
// @Failure 403 {object} respond.Response "非会话参与者"
// @Router /v1/conversations/{conversationId}/messages [get]
func GetConversationMessages(c *gin.Context) {
	var (
		t     int64 = tool.MakeTimestamp()
		query request.HistoryQuery
	)
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err, t)
		return
	}

	page, err := conversations.GetHistory(c.Request.Context(), auth.GetUserID(c), c.Param("conversationId"), query.Cursor, query.Limit, query.Direction)
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(page, tool.MakeTimestamp()-t))
}

// MarkConversationRead godoc
// @Summary 标记会话已读
// @Description 将调用者的已读回执移动到 messageID（为空时为最新消息），并返回重新计算的未读数。重复调用不会产生变化。
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conversationId path string true "会话ID"
// @Param request body request.MarkConversationReadReq false "已读位置"
// @Success 200 {object} respond.Response{data=models.ReadResult} "已读回执"
// @Failure 403 {object} respond.Response "非会话参与者"
// @Failure 404 {object} respond.Response "消息不存在"
// @Router /v1/conversations/{conversationId}/read [put]
func MarkConversationRead(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel request.MarkConversationReadReq
	)
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&requestModel); err != nil {
			badRequest(c, errors.New("malformed body"), t)
			return
		}
	}

	res, err := conversations.MarkRead(c.Request.Context(), auth.GetUserID(c), c.Param("conversationId"), requestModel.MessageID)
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(res, tool.MakeTimestamp()-t))
}

// GetConversationUnreadCount godoc
// @Summary 会话未读数
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param conversationId path string true "会话ID"
// @Success 200 {object} respond.Response "data.count"
// @Failure 403 {object} respond.Response "非会话参与者"
// @Router /v1/conversations/{conversationId}/unread-count [get]
func GetConversationUnreadCount(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	count, err := conversations.UnreadCount(c.Request.Context(), auth.GetUserID(c), c.Param("conversationId"))
	if err != nil {
		fail(c, err, t)
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(gin.H{"count": count}, tool.MakeTimestamp()-t))
}
