package model

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, board, system
	Action   string // ユーザー向け対処方法
	Status   int    // HTTPステータスコード
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 認証フローの失敗種別。すべて終端状態であり、自動リトライは行わない。
var (
	ErrMissingCode           = errors.New("authorization code is missing")
	ErrInvalidState          = errors.New("oauth state mismatch")
	ErrProviderDenied        = errors.New("identity provider returned an error")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrMembershipFetchFailed = errors.New("membership fetch failed")
	ErrMembershipDenied      = errors.New("membership denied")
	ErrProfileFetchFailed    = errors.New("profile fetch failed")
)

// 掲示板の失敗種別。
var (
	ErrNotMember         = errors.New("session is not a verified member")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageTooLong    = errors.New("message is too long")
	ErrPersistenceFailed = errors.New("persistence failed")
)

// 定義済みエラーコード
const (
	ErrCodeMissingCode           = "MISSING_CODE"
	ErrCodeInvalidState          = "INVALID_STATE"
	ErrCodeProviderDenied        = "PROVIDER_DENIED"
	ErrCodeTokenExchangeFailed   = "TOKEN_EXCHANGE_FAILED"
	ErrCodeMembershipFetchFailed = "MEMBERSHIP_FETCH_FAILED"
	ErrCodeMembershipDenied      = "MEMBERSHIP_DENIED"
	ErrCodeProfileFetchFailed    = "PROFILE_FETCH_FAILED"
	ErrCodeNotMember             = "NOT_MEMBER"
	ErrCodeEmptyMessage          = "EMPTY_MESSAGE"
	ErrCodeMessageTooLong        = "MESSAGE_TOO_LONG"
	ErrCodePersistenceFailed     = "PERSISTENCE_FAILED"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFFailed            = "CSRF_FAILED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewAuthFailureError は認証フローのエラーを種別ごとのAPIErrorに変換する。
// 種別ごとに異なるメッセージを返す。未知のエラーは内部エラーとして扱う。
func NewAuthFailureError(err error) *APIError {
	switch {
	case errors.Is(err, ErrMissingCode):
		return &APIError{
			Code:     ErrCodeMissingCode,
			Message:  "認可コードが見つかりませんでした。",
			Category: "auth",
			Action:   "もう一度ログインをやり直してください。",
			Status:   http.StatusBadRequest,
		}
	case errors.Is(err, ErrInvalidState):
		return &APIError{
			Code:     ErrCodeInvalidState,
			Message:  "ログインリクエストの検証に失敗しました。",
			Category: "auth",
			Action:   "ブラウザのCookieを有効にして、もう一度ログインしてください。",
			Status:   http.StatusBadRequest,
		}
	case errors.Is(err, ErrProviderDenied):
		return &APIError{
			Code:     ErrCodeProviderDenied,
			Message:  "Discordでの認可がキャンセルされました。",
			Category: "auth",
			Action:   "掲示板を利用するにはアクセスを許可してください。",
			Status:   http.StatusForbidden,
		}
	case errors.Is(err, ErrTokenExchangeFailed):
		return &APIError{
			Code:     ErrCodeTokenExchangeFailed,
			Message:  "アクセストークンの取得に失敗しました。",
			Category: "auth",
			Action:   "しばらく待ってから、もう一度ログインしてください。",
			Status:   http.StatusBadGateway,
		}
	case errors.Is(err, ErrMembershipFetchFailed):
		return &APIError{
			Code:     ErrCodeMembershipFetchFailed,
			Message:  "サーバー参加状況の取得に失敗しました。",
			Category: "auth",
			Action:   "しばらく待ってから、もう一度ログインしてください。",
			Status:   http.StatusBadGateway,
		}
	case errors.Is(err, ErrMembershipDenied):
		return &APIError{
			Code:     ErrCodeMembershipDenied,
			Message:  "指定されたサーバーに参加していません。",
			Category: "auth",
			Action:   "対象のサーバーに参加してから、もう一度ログインしてください。",
			Status:   http.StatusForbidden,
		}
	case errors.Is(err, ErrProfileFetchFailed):
		return &APIError{
			Code:     ErrCodeProfileFetchFailed,
			Message:  "ユーザー情報の取得に失敗しました。",
			Category: "auth",
			Action:   "しばらく待ってから、もう一度ログインしてください。",
			Status:   http.StatusBadGateway,
		}
	default:
		return NewInternalError()
	}
}

// NewBoardError は掲示板操作のエラーをAPIErrorに変換する。
func NewBoardError(err error) *APIError {
	switch {
	case errors.Is(err, ErrNotMember):
		return &APIError{
			Code:     ErrCodeNotMember,
			Message:  "閲覧権限がありません。",
			Category: "auth",
			Action:   "Discordでログインしてください。",
			Status:   http.StatusForbidden,
		}
	case errors.Is(err, ErrEmptyMessage):
		return &APIError{
			Code:     ErrCodeEmptyMessage,
			Message:  "メッセージが空です。",
			Category: "validation",
			Action:   "メッセージを入力してください。",
			Status:   http.StatusBadRequest,
		}
	case errors.Is(err, ErrMessageTooLong):
		return &APIError{
			Code:     ErrCodeMessageTooLong,
			Message:  "メッセージが長すぎます。",
			Category: "validation",
			Action:   "メッセージを短くしてから投稿してください。",
			Status:   http.StatusBadRequest,
		}
	case errors.Is(err, ErrPersistenceFailed):
		return &APIError{
			Code:     ErrCodePersistenceFailed,
			Message:  "投稿の保存に失敗しました。",
			Category: "board",
			Action:   "しばらく待ってから再度お試しください。",
			Status:   http.StatusInternalServerError,
		}
	default:
		return NewInternalError()
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   http.StatusInternalServerError,
	}
}
