package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを参照できるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// logFields はリクエストログに後から追加する属性。
type logFields struct {
	userID string
}

var logFieldsContextKey = contextKey("log_fields")

// StatusObserver はレスポンスのステータスコードを受け取る。メトリクス記録に使う。
type StatusObserver interface {
	ObserveHTTPRequest(method string, status int, duration time.Duration)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、user_id（ログイン済みの場合）を含む。
// observerがnilでなければステータスコードと所要時間を通知する。
func NewLoggingMiddleware(logger *slog.Logger, observer StatusObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// ユーザーIDは後段のセッションミドルウェアが書き込む
			fields := &logFields{}
			r = r.WithContext(context.WithValue(r.Context(), logFieldsContextKey, fields))

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				args = append(args, slog.String("request_id", id))
			}
			if fields.userID != "" {
				args = append(args, slog.String("user_id", fields.userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)

			if observer != nil {
				observer.ObserveHTTPRequest(r.Method, rec.statusCode, duration)
			}
		})
	}
}
