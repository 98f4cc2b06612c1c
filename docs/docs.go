// Package docs registers the swagger document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {"tags": ["System"], "summary": "健康检查", "produces": ["application/json"],
                "responses": {"200": {"description": "成功响应", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/conversations/{conversationId}/messages": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Conversations"], "summary": "会话历史消息",
                "parameters": [
                    {"type": "string", "name": "conversationId", "in": "path", "required": true},
                    {"type": "string", "name": "cursor", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "string", "name": "direction", "in": "query"}
                ],
                "responses": {"200": {"description": "分页结果", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/conversations/{conversationId}/read": {
            "put": {"security": [{"BearerAuth": []}], "tags": ["Conversations"], "summary": "标记会话已读",
                "parameters": [
                    {"type": "string", "name": "conversationId", "in": "path", "required": true},
                    {"name": "request", "in": "body", "schema": {"$ref": "#/definitions/request.MarkConversationReadReq"}}
                ],
                "responses": {"200": {"description": "已读回执", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/conversations/{conversationId}/unread-count": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Conversations"], "summary": "会话未读数",
                "parameters": [{"type": "string", "name": "conversationId", "in": "path", "required": true}],
                "responses": {"200": {"description": "data.count", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/notifications": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Notifications"], "summary": "通知历史",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "pageSize", "in": "query"},
                    {"type": "boolean", "name": "unreadOnly", "in": "query"}
                ],
                "responses": {"200": {"description": "分页结果", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/notifications/unread-count": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Notifications"], "summary": "未读通知数",
                "responses": {"200": {"description": "data.count", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/notifications/read-all": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Notifications"], "summary": "全部通知标记已读",
                "responses": {"200": {"description": "data.updated", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/notifications/{notificationId}/read": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Notifications"], "summary": "标记单条通知已读",
                "parameters": [{"type": "string", "name": "notificationId", "in": "path", "required": true}],
                "responses": {"200": {"description": "成功响应", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/notifications/{notificationId}": {
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Notifications"], "summary": "删除通知",
                "parameters": [{"type": "string", "name": "notificationId", "in": "path", "required": true}],
                "responses": {"200": {"description": "成功响应", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        },
        "/v1/internal/notifications": {
            "post": {"security": [{"ApiKeyAuth": []}], "tags": ["Internal"], "summary": "接收业务通知",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/pushcenter.PublishRequest"}}],
                "responses": {"200": {"description": "已存储", "schema": {"$ref": "#/definitions/respond.Response"}}}}
        }
    },
    "definitions": {
        "respond.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 0},
                "message": {"type": "string", "example": "success"},
                "processingTime": {"type": "integer", "example": 3},
                "data": {}
            }
        },
        "request.MarkConversationReadReq": {
            "type": "object",
            "properties": {"messageID": {"type": "string"}}
        },
        "pushcenter.PublishRequest": {
            "type": "object",
            "required": ["recipientUserID", "notificationType", "message"],
            "properties": {
                "notificationID": {"type": "string"},
                "recipientUserID": {"type": "string"},
                "conversationID": {"type": "string"},
                "notificationType": {"type": "string", "enum": ["message", "review_received", "review_reply", "content_moderated", "content_flagged", "request_accepted"]},
                "reviewID": {"type": "string"},
                "requestID": {"type": "string"},
                "message": {"type": "string"},
                "reason": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-KEY", "in": "header"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "实时通知服务 API",
	Description:      "实时聊天与通知推送服务，支持 REST 兜底接口",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
