package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/memberboard/internal/model"
	"github.com/hitoshi/memberboard/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ログイン結果のラベル。メトリクスに記録する。
const (
	ResultAuthenticated         = "authenticated"
	ResultMissingCode           = "missing_code"
	ResultTokenExchangeFailed   = "token_exchange_failed"
	ResultMembershipFetchFailed = "membership_fetch_failed"
	ResultMembershipDenied      = "membership_denied"
	ResultProfileFetchFailed    = "profile_fetch_failed"
)

// 外部呼び出しのステップ名。
const (
	StepTokenExchange = "token_exchange"
	StepFetchGroups   = "fetch_groups"
	StepFetchProfile  = "fetch_profile"
)

// MetricsRecorder は認証フローのメトリクス記録に必要なインターフェース。
type MetricsRecorder interface {
	RecordLoginResult(result string)
	RecordProviderCall(step string, duration time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordLoginResult(string) {}
func (noopRecorder) RecordProviderCall(string, time.Duration, error) {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AllowedGroupIDs []string // 掲示板の利用を許可するグループID
}

// Service は認可コードフローとグループ所属の検証を行う。
// ローカルな状態を持たず、並行に呼び出してよい。
type Service struct {
	provider  IdentityProvider
	allowList []string
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewService(provider IdentityProvider, config ServiceConfig, recorder MetricsRecorder) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	allowList := make([]string, len(config.AllowedGroupIDs))
	copy(allowList, config.AllowedGroupIDs)

	return &Service{
		provider:  provider,
		allowList: allowList,
		metrics:   recorder,
	}
}

// BeginLogin はIdPの認可エンドポイントへのリダイレクトURLを返す。
// この時点ではサーバー側に状態を作らない。stateの保持は呼び出し側が行う。
func (s *Service) BeginLogin(state string) string {
	return s.provider.GetLoginURL(state)
}

// CompleteLogin はコールバックで受け取った認可コードからセッションを生成する。
//
// 各外部呼び出しは独立したfail-fastのステップで、リトライは行わない。
// 所属が確認できない場合はプロフィールを取得せずにErrMembershipDeniedを返す。
func (s *Service) CompleteLogin(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードの存在確認（外部呼び出しの前に行う）
	if code == "" {
		s.metrics.RecordLoginResult(ResultMissingCode)
		return nil, model.ErrMissingCode
	}

	ctx, span := tracing.StartSpan(ctx, "auth.complete_login")
	defer span.End()

	// 2. 認可コードをアクセストークンに交換
	accessToken, err := observe(ctx, s, StepTokenExchange, func(ctx context.Context) (string, error) {
		return s.provider.ExchangeCode(ctx, code)
	})
	if err != nil {
		return nil, s.fail(span, ResultTokenExchangeFailed, fmt.Errorf("%w: %w", model.ErrTokenExchangeFailed, err))
	}

	// 3. 所属グループ一覧を取得
	groups, err := observe(ctx, s, StepFetchGroups, func(ctx context.Context) ([]Group, error) {
		return s.provider.FetchGroups(ctx, accessToken)
	})
	if err != nil {
		return nil, s.fail(span, ResultMembershipFetchFailed, fmt.Errorf("%w: %w", model.ErrMembershipFetchFailed, err))
	}

	// 4. 許可リストとの照合
	if !HasAllowedMembership(groups, s.allowList) {
		slog.Warn("membership denied",
			slog.Int("group_count", len(groups)),
		)
		return nil, s.fail(span, ResultMembershipDenied, model.ErrMembershipDenied)
	}

	// 5. プロフィールを取得
	profile, err := observe(ctx, s, StepFetchProfile, func(ctx context.Context) (*Profile, error) {
		return s.provider.FetchProfile(ctx, accessToken)
	})
	if err != nil {
		return nil, s.fail(span, ResultProfileFetchFailed, fmt.Errorf("%w: %w", model.ErrProfileFetchFailed, err))
	}

	// 6. セッションを生成
	session := &model.Session{
		ExternalUserID:   profile.UserID,
		DisplayName:      profile.Username,
		AvatarRef:        profile.AvatarRef,
		IsVerifiedMember: true,
	}

	s.metrics.RecordLoginResult(ResultAuthenticated)
	span.SetAttributes(attribute.String("auth.result", ResultAuthenticated))
	tracing.SetSpanSuccess(span)
	slog.Info("member logged in",
		slog.String("user_id", session.ExternalUserID),
		slog.String("display_name", session.DisplayName),
	)

	return session, nil
}

// Logout はセッションへの参照を破棄する。失敗しない。
// セッションストアからの削除は呼び出し側が行う。
func (s *Service) Logout(session *model.Session) {
	if session == nil {
		return
	}
	slog.Info("member logged out", slog.String("user_id", session.ExternalUserID))
}

// fail は失敗結果をメトリクスとspanに記録し、errをそのまま返す。
func (s *Service) fail(span trace.Span, result string, err error) error {
	s.metrics.RecordLoginResult(result)
	span.SetAttributes(attribute.String("auth.result", result))
	tracing.SetSpanError(span, err)
	slog.Warn("login failed",
		slog.String("result", result),
		slog.String("error", err.Error()),
	)
	return err
}

// observe は外部呼び出しを1つのspanで包み、所要時間を記録する。
func observe[T any](ctx context.Context, s *Service, step string, call func(context.Context) (T, error)) (T, error) {
	ctx, span := tracing.StartSpan(ctx, "auth."+step, attribute.String("auth.step", step))
	defer span.End()

	start := time.Now()
	v, err := call(ctx)
	s.metrics.RecordProviderCall(step, time.Since(start), err)

	if err != nil {
		tracing.SetSpanError(span, err)
	} else {
		tracing.SetSpanSuccess(span)
	}
	return v, err
}
