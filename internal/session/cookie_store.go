package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/memberboard/internal/model"
)

const cookieIssuer = "memberboard"

// sessionClaims はCookieに保存するJWTのクレーム。
type sessionClaims struct {
	jwt.RegisteredClaims
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Member bool   `json:"member"`
}

// CookieStore はセッションをHS256署名付きJWTとしてCookieに保存する。
// サーバー側には状態を持たない。
type CookieStore struct {
	secret  []byte
	options CookieOptions
	now     func() time.Time
}

// NewCookieStore はCookieStoreを生成する。secretは署名鍵で空であってはならない。
func NewCookieStore(secret string, options CookieOptions) (*CookieStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	return &CookieStore{
		secret:  []byte(secret),
		options: options.withDefaults(),
		now:     time.Now,
	}, nil
}

// Load はCookieのJWTを検証してセッションを復元する。
func (s *CookieStore) Load(r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(s.options.Name)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	var claims sessionClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		slog.Debug("rejected session cookie", slog.String("error", err.Error()))
		return nil, nil
	}

	if claims.Issuer != cookieIssuer || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, nil
	}
	if !claims.ExpiresAt.Time.After(s.now()) {
		return nil, nil
	}

	return &model.Session{
		ExternalUserID:   claims.Subject,
		DisplayName:      claims.Name,
		AvatarRef:        claims.Avatar,
		IsVerifiedMember: claims.Member,
		ExpiresAt:        claims.ExpiresAt.Time,
	}, nil
}

// Save はセッションを署名してCookieに設定する。ExpiresAtはMaxAgeから設定される。
func (s *CookieStore) Save(w http.ResponseWriter, _ *http.Request, sess *model.Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}

	now := s.now()
	sess.ExpiresAt = now.Add(s.options.MaxAge)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cookieIssuer,
			Subject:   sess.ExternalUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		Name:   sess.DisplayName,
		Avatar: sess.AvatarRef,
		Member: sess.IsVerifiedMember,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("failed to sign session: %w", err)
	}

	http.SetCookie(w, s.options.cookie(signed))
	return nil
}

// Clear はセッションCookieを削除する。
func (s *CookieStore) Clear(w http.ResponseWriter, _ *http.Request) error {
	http.SetCookie(w, s.options.expired())
	return nil
}

var _ Store = (*CookieStore)(nil)
