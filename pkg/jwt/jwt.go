package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
)

var (
	ErrTokenExpired = errors.New("session token expired")
	ErrTokenInvalid = errors.New("session token invalid")
)

const issuer = "attendance-admin"

// Claims 会话 Cookie 中的声明
// SessionID 是视图状态存储的键，不携带任何身份或权限信息
type Claims struct {
	SessionID string `json:"sid"`
	jwtv5.RegisteredClaims
}

// Manager 会话令牌管理器
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager 创建会话令牌管理器
func NewManager(cfg *config.SessionConfig) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{secret: []byte(cfg.Secret), ttl: ttl}
}

// TTL 令牌有效期，同时用作 Cookie 的 Max-Age
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// NewSession 生成新的会话 ID 及其签名令牌
func (m *Manager) NewSession() (sessionID, token string, err error) {
	sessionID = uuid.NewString()
	token, err = m.GenerateSessionToken(sessionID)
	if err != nil {
		return "", "", err
	}
	return sessionID, token, nil
}

// GenerateSessionToken 为已有会话 ID 签发令牌（续期时使用）
func (m *Manager) GenerateSessionToken(sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(m.ttl)),
			Issuer:    issuer,
		},
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并验证令牌
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
