// Package middleware 提供HTTP中间件
package middleware

import (
	"net/http"
	"strings"

	"github.com/paiban/loadplan/internal/security"
	"github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/logger"
)

// AuthConfig 认证配置
type AuthConfig struct {
	APIKeyManager *security.APIKeyManager
	SkipPaths     []string // 跳过认证的路径前缀
	// ScopeFor 返回请求需要的权限，返回空字符串表示无需认证
	ScopeFor func(r *http.Request) string
}

// WriteScope 默认权限映射：只读请求免认证，写请求按路径区分
func WriteScope(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ""
	}
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/api/v1/plans/suggest"), strings.HasPrefix(p, "/api/v1/plans/preview"):
		// 只计算不落盘
		return ""
	case strings.HasPrefix(p, "/api/v1/plans/"):
		return security.ScopePlanWrite
	case strings.HasPrefix(p, "/api/v1/loads/"):
		return security.ScopeLoadWrite
	case strings.HasPrefix(p, "/api/v1/trailer-spec/"):
		return security.ScopeTrailerSet
	}
	return security.ScopeAll
}

// AuthMiddleware 认证中间件，未配置密钥时直接放行
func AuthMiddleware(config *AuthConfig) func(http.Handler) http.Handler {
	scopeFor := config.ScopeFor
	if scopeFor == nil {
		scopeFor = WriteScope
	}

	return func(next http.Handler) http.Handler {
		if config.APIKeyManager == nil || config.APIKeyManager.Len() == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			scope := scopeFor(r)
			if scope == "" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := security.ExtractAPIKey(r)
			if apiKey == "" {
				WriteError(w, errors.New(errors.CodeUnauthorized, "API密钥未提供"))
				return
			}

			key, err := config.APIKeyManager.Validate(apiKey)
			if err != nil {
				logger.WithContext(r.Context()).Warn().
					Err(err).
					Str("path", r.URL.Path).
					Msg("API密钥验证失败")
				WriteError(w, errors.Wrap(err, errors.CodeUnauthorized, "无效的API密钥"))
				return
			}

			if !key.HasScope(scope) {
				WriteError(w, errors.New(errors.CodeForbidden, "权限不足").WithField("scope", scope))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
