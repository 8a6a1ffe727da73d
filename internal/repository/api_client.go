package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/metrics"
)

// 响应体大小上限，防止异常响应占满内存
const apiMaxBodySize = 10 * 1024 * 1024

var (
	// ErrAPIOffline 无法连接学校 API（拒绝连接、DNS 失败、网络不可达）
	ErrAPIOffline = errors.New("offline: cannot reach the server, check your connection")
	// ErrNotFound 远端资源不存在
	ErrNotFound = errors.New("not found")
)

// APIError 远端 API 返回的非成功状态
type APIError struct {
	Op      string
	Status  int
	Message string // 服务端提供的错误信息，可能为空
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

// UserMessage 面向用户的提示：优先使用服务端信息，否则按状态码生成
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return "You do not have permission to do that"
	case e.Status == http.StatusNotFound:
		return "The requested data was not found"
	case e.Status >= 500:
		return fmt.Sprintf("Server error (%d), please try again", e.Status)
	default:
		return fmt.Sprintf("Request failed (%d)", e.Status)
	}
}

// APIClient 学校 REST API 的 HTTP+JSON 客户端
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAPIClient 创建 API 客户端
func NewAPIClient(cfg *config.APIConfig, m *metrics.Metrics, logger *zap.Logger) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
		logger:  logger,
	}
}

// get 发送 GET 请求并解码响应
func (c *APIClient) get(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: 构造请求失败: %w", op, err)
	}
	return c.do(req, op, out)
}

// post 发送 JSON POST 请求并解码响应
func (c *APIClient) post(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: 序列化请求失败: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: 构造请求失败: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, op, out)
}

func (c *APIClient) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isOffline(err) {
			c.metrics.ObserveUpstream(op, "offline", time.Since(start))
			c.logger.Warn("学校 API 不可达", zap.String("op", op), zap.Error(err))
			return fmt.Errorf("%s: %w", op, errors.Join(ErrAPIOffline, err))
		}
		c.metrics.ObserveUpstream(op, "error", time.Since(start))
		return fmt.Errorf("%s: 请求失败: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, apiMaxBodySize))
	if err != nil {
		c.metrics.ObserveUpstream(op, "error", time.Since(start))
		return fmt.Errorf("%s: 读取响应失败: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.ObserveUpstream(op, fmt.Sprintf("%dxx", resp.StatusCode/100), time.Since(start))
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: extractMessage(body)}
		if resp.StatusCode == http.StatusNotFound {
			return errors.Join(ErrNotFound, apiErr)
		}
		return apiErr
	}
	c.metrics.ObserveUpstream(op, "ok", time.Since(start))

	if err := decodeBody(body, out); err != nil {
		return fmt.Errorf("%s: 解析响应失败: %w", op, err)
	}
	return nil
}

// decodeBody 解码响应体；兼容裸数据与 {"data": ...} 包装两种形式
func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(body, out)
}

// extractMessage 从错误响应中提取服务端消息
func extractMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// isOffline 判断是否为"连不上"一类的网络错误
func isOffline(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
