// Package identity 校验请求携带的 Bearer 令牌并解析出用户身份。
package identity

import (
	"context"
	"errors"
	"strings"

	"foodietrack/backend/go/internal/apperr"

	"github.com/golang-jwt/jwt"
)

// Identity 是令牌中解析出的用户身份，UserID 取自 sub。
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Verifier 校验一个原始令牌字符串。
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken 从 Authorization 头中取出令牌。
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthenticated("identity.BearerToken", "请求未包含授权标头", nil)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.Unauthenticated("identity.BearerToken", "授权标头格式不正确", nil)
	}
	return strings.TrimSpace(parts[1]), nil
}

// HMACVerifier 校验 HS256 签名的令牌，用于本地开发和测试。
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier 创建一个新的 HMACVerifier 实例。
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify 实现 Verifier。
func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	const op = "identity.HMACVerifier.Verify"
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("非预期的签名方法")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, apperr.Unauthenticated(op, "无效的 token", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperr.Unauthenticated(op, "无效的 token", nil)
	}
	if _, hasExp := claims["exp"]; !hasExp {
		return nil, apperr.Unauthenticated(op, "token 缺少 exp", nil)
	}
	return identityFromClaims(op, claims)
}

// SignHMAC 签发一个 HS256 令牌，供开发环境和测试使用。
func SignHMAC(secret string, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func identityFromClaims(op string, claims jwt.MapClaims) (*Identity, error) {
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, apperr.Unauthenticated(op, "无效的 token claims", nil)
	}
	id := &Identity{UserID: sub}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	return id, nil
}

func audContains(aud interface{}, required string) bool {
	switch v := aud.(type) {
	case string:
		return v == required
	case []interface{}:
		for _, it := range v {
			if s, ok := it.(string); ok && s == required {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == required {
				return true
			}
		}
	}
	return false
}

var _ Verifier = (*HMACVerifier)(nil)
