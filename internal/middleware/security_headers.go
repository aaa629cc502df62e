package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersConfig はセキュリティヘッダーの設定。
type SecurityHeadersConfig struct {
	// アバター画像の取得元（例: https://cdn.discordapp.com）。CSPのimg-srcに追加する。
	ImageOrigins []string
	// trueの場合はStrict-Transport-Securityを付与する
	HSTS bool
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware(config SecurityHeadersConfig) func(next http.Handler) http.Handler {
	imgSrc := append([]string{"'self'"}, config.ImageOrigins...)
	csp := strings.Join([]string{
		"default-src 'self'",
		"img-src " + strings.Join(imgSrc, " "),
		"style-src 'self' 'unsafe-inline'",
		"form-action 'self'",
		"frame-ancestors 'none'",
		"base-uri 'none'",
	}, "; ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy", csp)
			if config.HSTS {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
