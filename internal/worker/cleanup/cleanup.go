// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// PostgreSQLのセッションストアを使う場合のみ起動する。
// Cookieセッションは署名済みの有効期限で失効するため対象外。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredSessionDeleter は期限切れセッションの削除を抽象化するインターフェース。
// repository.SessionRepository が満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// MetricsRecorder は削除件数の記録に必要なインターフェース。
type MetricsRecorder interface {
	RecordSessionsExpired(count int64)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions ExpiredSessionDeleter
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// NewCleanupJob は新しいCleanupJobを生成する。metricsはnilでもよい。
func NewCleanupJob(sessions ExpiredSessionDeleter, logger *slog.Logger, metrics MetricsRecorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsExpired(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以後intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。個々の失敗はログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
