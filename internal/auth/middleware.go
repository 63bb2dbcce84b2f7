package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	loggerpkg "MindPress-Market/pkg/logger"
)

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// Public 中的路径无需认证，例如健康检查。
	Public map[string]bool
	// AuditEvent 指定记录审计日志时使用的事件名称，为空时使用请求路径。
	AuditEvent string
	// Logger 为空时写入全局审计日志。
	Logger *slog.Logger
	// AllowAnonymous 为 true 且认证器没有任何令牌时放行所有请求；
	// 否则没有令牌的认证器拒绝一切非公开请求。
	AllowAnonymous bool
}

// Middleware 返回一个 HTTP 中间件，校验 Bearer 令牌并为每个请求记录审计日志。
func (a *TokenAuthenticator) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := cfg.Logger
			if logger == nil {
				logger = loggerpkg.Audit()
			}
			if cfg.Public[r.URL.Path] || (cfg.AllowAnonymous && !a.Enabled()) {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := a.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, ErrMissingToken) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="market"`)
				}
				http.Error(w, http.StatusText(status), status)
				logger.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			logger.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"token", subject.Fingerprint,
			)
		})
	}
}

// auditWriter 是一个包装了 http.ResponseWriter 的结构体，用于捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
