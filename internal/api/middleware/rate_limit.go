package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/response"
)

// RateLimiter 滑动窗口限流器，由 redis.Client 实现
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 基于滑动窗口的速率限制中间件
// 始终按客户端 IP 计数；已建立会话时再按会话计数，两者任一超限即拒绝
// limiter 为 nil 或出错时降级放行
func RateLimit(limiter RateLimiter, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		keys := []string{fmt.Sprintf("rate_limit:ip:%s:%s", c.ClientIP(), c.FullPath())}
		if sid := c.GetString(SessionIDKey); sid != "" {
			keys = append(keys, fmt.Sprintf("rate_limit:session:%s:%s", sid, c.FullPath()))
		}
		for _, key := range keys {
			allowed, err := limiter.CheckRateLimit(c.Request.Context(), key, limit, window)
			if err != nil {
				continue
			}
			if !allowed {
				response.TooManyRequests(c, 10004, "Too many requests, please slow down")
				c.Abort()
				return
			}
		}

		c.Next()
	}
}
