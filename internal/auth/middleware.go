// Package auth 提供了 API 的 Bearer Token 认证中间件。
// 令牌为 HMAC 签名的 JWT；认证关闭时中间件为直通。
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oriys/dnsflow/internal/config"
)

// contextKey 避免与其他包的 context 键冲突。
type contextKey string

// subjectKey 是认证主体在请求上下文中的键。
const subjectKey contextKey = "auth_subject"

// Middleware 返回 Bearer Token 校验中间件。
// cfg.Enabled 为 false 时返回 nil，调用方按无认证挂载路由。
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return nil
	}
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing bearer token")
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			subject := ""
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if sub, err := claims.GetSubject(); err == nil {
					subject = sub
				}
			}
			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject 从请求上下文取出认证主体，未认证时返回空串。
func Subject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}

// unauthorized 写出 401 响应。
func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
