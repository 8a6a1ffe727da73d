package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/api/middleware"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/response"
)

// MustGetSessionID 从 Gin 上下文中安全提取会话 ID。
// 如果 Session 中间件未正确注入，返回 false 并写入 500 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetSessionID(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.SessionIDKey)
	if !exists {
		response.InternalError(c)
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.InternalError(c)
		return "", false
	}
	return s, true
}
