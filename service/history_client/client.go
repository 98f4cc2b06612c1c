// Package history_client REST 兜底接口的客户端：历史消息、已读回执和通知收件箱
package history_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"live-notify-service/models"
)

const DefaultTimeout = 15 * time.Second

// APIError REST 请求失败，携带服务端返回的消息
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

// TokenSource 为每个请求提供 bearer 凭证
type TokenSource func() string

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

func NewClient(baseURL string, token TokenSource) *Client {
	return NewClientWithHTTP(baseURL, token, &http.Client{Timeout: DefaultTimeout})
}

func NewClientWithHTTP(baseURL string, token TokenSource, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type countData struct {
	Count int64 `json:"count"`
}

// HistoryOptions 会话历史分页参数
type HistoryOptions struct {
	Cursor    string
	Limit     int
	Direction string
}

func (c *Client) GetMessages(ctx context.Context, conversationID string, opts HistoryOptions) (*models.MessagePage, error) {
	q := url.Values{}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Direction != "" {
		q.Set("direction", opts.Direction)
	}
	var page models.MessagePage
	if err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkConversationRead 移动已读回执，messageID 为空表示最新消息
func (c *Client) MarkConversationRead(ctx context.Context, conversationID, messageID string) (*models.ReadResult, error) {
	var res models.ReadResult
	body := map[string]string{"messageID": messageID}
	if err := c.do(ctx, http.MethodPut, "/v1/conversations/"+url.PathEscape(conversationID)+"/read", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ConversationUnreadCount(ctx context.Context, conversationID string) (int64, error) {
	var out countData
	if err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(conversationID)+"/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ListNotifications(ctx context.Context, page, pageSize int, unreadOnly bool) (*models.NotificationPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if unreadOnly {
		q.Set("unreadOnly", "true")
	}
	var out models.NotificationPage
	if err := c.do(ctx, http.MethodGet, "/v1/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NotificationUnreadCount(ctx context.Context) (int64, error) {
	var out countData
	if err := c.do(ctx, http.MethodGet, "/v1/notifications/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodPost, "/v1/notifications/"+url.PathEscape(notificationID)+"/read", nil, nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/read-all", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *Client) DeleteNotification(ctx context.Context, notificationID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/notifications/"+url.PathEscape(notificationID), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
