package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Pinger は依存先の疎通確認を行う。*sql.DB が満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックを返す。pingerがnilの場合は常に正常を返す。
// GET /health
func HealthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if pinger != nil {
			if err := pinger.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
