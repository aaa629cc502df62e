// Package board は掲示板の投稿の永続化と投稿処理を提供する。
//
// 投稿はJSON配列として1つのファイルに保存される。
// 書き込みのたびにファイル全体を読み込み、追記して書き直す。
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/memberboard/internal/model"
	"github.com/hitoshi/memberboard/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// TimestampLayout は保存ファイルのtimestampフィールドの形式。
const TimestampLayout = "2006-01-02 15:04:05"

// jsonIndent は保存ファイルのインデント。既存のbbs.jsonと同じ4スペース。
const jsonIndent = "    "

// StoreMetrics はFileStoreのメトリクス記録に必要なインターフェース。
type StoreMetrics interface {
	RecordPostAppended()
	RecordPersistenceFailure()
	RecordCorruptStore()
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordPostAppended()       {}
func (noopStoreMetrics) RecordPersistenceFailure() {}
func (noopStoreMetrics) RecordCorruptStore()       {}

// record は保存ファイル上の1件の投稿。
type record struct {
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
}

// FileStore は投稿をJSONファイルに保存するPostStore。
//
// 同一プロセス内の追記はミューテックスで直列化する。
// 書き込みは一時ファイルへの書き出しとリネームで行うため、
// 読み取り側が書きかけのファイルを読むことはない。
// 複数プロセスからの同時書き込みは想定しない。
type FileStore struct {
	path    string
	mu      sync.Mutex
	metrics StoreMetrics
	now     func() time.Time
}

// NewFileStore はpathに投稿を保存するFileStoreを生成する。
// metricsがnilの場合はメトリクスを記録しない。
func NewFileStore(path string, metrics StoreMetrics) *FileStore {
	if metrics == nil {
		metrics = noopStoreMetrics{}
	}
	return &FileStore{
		path:    path,
		metrics: metrics,
		now:     time.Now,
	}
}

// Path は保存先ファイルのパスを返す。
func (s *FileStore) Path() string {
	return s.path
}

// Ensure は保存ファイルが存在しない場合に空の配列で作成する。
func (s *FileStore) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat posts file: %w", err)
	}

	if err := s.writeAtomic(nil); err != nil {
		return fmt.Errorf("failed to create posts file: %w", err)
	}
	slog.Info("posts file created", slog.String("path", s.path))
	return nil
}

// LoadAll は保存されている全投稿を挿入順に返す。
//
// ファイルが存在しない場合は空のスライスを返す。
// 内容が解析できない場合もエラーにはせず空のスライスを返し、WARNログとメトリクスに記録する。
func (s *FileStore) LoadAll(ctx context.Context) ([]model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	posts, _, err := s.load()
	return posts, err
}

// ListNewestFirst は全投稿を新しい順に返す。
func (s *FileStore) ListNewestFirst(ctx context.Context) ([]model.Post, error) {
	posts, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(posts)
	return posts, nil
}

// Append は投稿を末尾に追加して保存する。
// 投稿時刻は保存形式に合わせて秒単位のローカル時刻として書き込まれる。
// 失敗した場合はmodel.ErrPersistenceFailedを返し、既存のファイルは変更されない。
func (s *FileStore) Append(ctx context.Context, post model.Post) error {
	ctx, span := tracing.StartSpan(ctx, "board.append",
		attribute.String("board.path", s.path),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(fmt.Errorf("%w: %w", model.ErrPersistenceFailed, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	posts, corrupt, err := s.load()
	if err != nil {
		err = s.fail(fmt.Errorf("%w: %w", model.ErrPersistenceFailed, err))
		tracing.SetSpanError(span, err)
		return err
	}

	// 解析できない内容は書き直しで失われるため、別名で残しておく
	if corrupt != nil {
		if err := s.quarantine(corrupt); err != nil {
			err = s.fail(fmt.Errorf("%w: %w", model.ErrPersistenceFailed, err))
			tracing.SetSpanError(span, err)
			return err
		}
	}

	post.CreatedAt = normalizeTime(post.CreatedAt)
	posts = append(posts, post)
	if err := s.writeAtomic(posts); err != nil {
		err = s.fail(fmt.Errorf("%w: %w", model.ErrPersistenceFailed, err))
		tracing.SetSpanError(span, err)
		return err
	}

	s.metrics.RecordPostAppended()
	span.SetAttributes(attribute.Int("board.post_count", len(posts)))
	tracing.SetSpanSuccess(span)
	return nil
}

// load はファイルを読み込んで投稿に変換する。
// 内容が解析できない場合は空のスライスと元のバイト列を返す。
func (s *FileStore) load() ([]model.Post, []byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Post{}, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read posts file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Post{}, nil, nil
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("posts file is corrupt, treating as empty",
			slog.String("path", s.path),
			slog.Int("size", len(data)),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordCorruptStore()
		return []model.Post{}, data, nil
	}

	posts := make([]model.Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, r.toPost())
	}
	return posts, nil, nil
}

// writeAtomic は投稿を一時ファイルに書き出し、fsync後に保存先へリネームする。
func (s *FileStore) writeAtomic(posts []model.Post) error {
	data, err := encodePosts(posts)
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// リネーム前に失敗した場合は一時ファイルを残さない
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace posts file: %w", err)
	}
	committed = true
	return nil
}

// quarantine は解析できなかった内容を <path>.corrupt-<unix> に書き出す。
func (s *FileStore) quarantine(data []byte) error {
	dest := s.path + ".corrupt-" + strconv.FormatInt(s.now().Unix(), 10)
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("failed to quarantine corrupt posts file: %w", err)
	}
	slog.Warn("corrupt posts file quarantined",
		slog.String("path", s.path),
		slog.String("quarantine", dest),
	)
	return nil
}

func (s *FileStore) fail(err error) error {
	s.metrics.RecordPersistenceFailure()
	slog.Error("failed to append post",
		slog.String("path", s.path),
		slog.String("error", err.Error()),
	)
	return err
}

// encodePosts は投稿を保存形式のJSONに変換する。
// 非ASCII文字とHTML記号はエスケープしない。
func encodePosts(posts []model.Post) ([]byte, error) {
	records := make([]record, 0, len(posts))
	for _, p := range posts {
		records = append(records, newRecord(p))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", jsonIndent)
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newRecord(p model.Post) record {
	r := record{
		Username:  p.Author,
		Message:   p.Body,
		Timestamp: p.CreatedAt.Local().Format(TimestampLayout),
	}
	if p.AvatarRef != "" {
		avatar := p.AvatarRef
		r.AvatarURL = &avatar
	}
	return r
}

func (r record) toPost() model.Post {
	p := model.Post{
		Author:    r.Username,
		Body:      r.Message,
		CreatedAt: parseTimestamp(r.Timestamp),
	}
	if r.AvatarURL != nil {
		p.AvatarRef = *r.AvatarURL
	}
	return p
}

// normalizeTime は時刻を保存形式で表現できる精度に揃える。
// 秒未満を切り捨て、ローカル時刻に変換する。モノトニック時計の値も落とす。
func normalizeTime(t time.Time) time.Time {
	return t.Round(0).Truncate(time.Second).In(time.Local)
}

// parseTimestamp は保存形式またはRFC 3339のタイムスタンプを解析する。
// どちらにも一致しない場合はゼロ値を返す。
func parseTimestamp(value string) time.Time {
	if t, err := time.ParseInLocation(TimestampLayout, value, time.Local); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
