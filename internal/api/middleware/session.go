package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/jwt"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/response"
)

// SessionIDKey 会话 ID 在 gin.Context 中的键
const SessionIDKey = "session_id"

// Session 浏览器会话中间件
// 从签名 Cookie 中取出会话 ID；Cookie 缺失、无效或过期时签发新会话。
// 剩余有效期不足一半时续期，会话 ID 保持不变。
// 会话只用于定位视图状态，不做任何身份校验。
func Session(mgr *jwt.Manager, cfg *config.SessionConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, err := c.Cookie(cfg.CookieName); err == nil && raw != "" {
			claims, err := mgr.ParseToken(raw)
			if err == nil {
				if time.Until(claims.ExpiresAt.Time) < mgr.TTL()/2 {
					if token, err := mgr.GenerateSessionToken(claims.SessionID); err == nil {
						setSessionCookie(c, cfg, token, mgr.TTL())
					}
				}
				c.Set(SessionIDKey, claims.SessionID)
				c.Next()
				return
			}
			logger.Debug("会话 Cookie 无效，签发新会话", zap.Error(err))
		}

		sid, token, err := mgr.NewSession()
		if err != nil {
			logger.Error("签发会话失败", zap.Error(err))
			response.InternalError(c)
			c.Abort()
			return
		}
		setSessionCookie(c, cfg, token, mgr.TTL())
		c.Set(SessionIDKey, sid)
		c.Next()
	}
}

func setSessionCookie(c *gin.Context, cfg *config.SessionConfig, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, token, int(ttl.Seconds()), "/", "", cfg.Secure, true)
}
