package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/hitoshi/memberboard/internal/middleware"
	"github.com/hitoshi/memberboard/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	beginLoginFn    func(state string) string
	completeLoginFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn        func(sess *model.Session)

	completeCalls []string
}

func (m *mockAuthService) BeginLogin(state string) string {
	if m.beginLoginFn != nil {
		return m.beginLoginFn(state)
	}
	return "https://discord.example/oauth2/authorize?state=" + state
}

func (m *mockAuthService) CompleteLogin(ctx context.Context, code string) (*model.Session, error) {
	m.completeCalls = append(m.completeCalls, code)
	if code == "" {
		return nil, model.ErrMissingCode
	}
	if m.completeLoginFn != nil {
		return m.completeLoginFn(ctx, code)
	}
	return memberSession("U1"), nil
}

func (m *mockAuthService) Logout(sess *model.Session) {
	if m.logoutFn != nil {
		m.logoutFn(sess)
	}
}

type mockSessionStore struct {
	loadFn  func(r *http.Request) (*model.Session, error)
	saveFn  func(w http.ResponseWriter, r *http.Request, sess *model.Session) error
	clearFn func(w http.ResponseWriter, r *http.Request) error

	saved   []*model.Session
	cleared int
}

func (m *mockSessionStore) Load(r *http.Request) (*model.Session, error) {
	if m.loadFn != nil {
		return m.loadFn(r)
	}
	return nil, nil
}

func (m *mockSessionStore) Save(w http.ResponseWriter, r *http.Request, sess *model.Session) error {
	m.saved = append(m.saved, sess)
	if m.saveFn != nil {
		return m.saveFn(w, r, sess)
	}
	return nil
}

func (m *mockSessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	m.cleared++
	if m.clearFn != nil {
		return m.clearFn(w, r)
	}
	return nil
}

type mockBoardService struct {
	listFn   func(ctx context.Context, sess *model.Session) ([]model.Post, error)
	submitFn func(ctx context.Context, sess *model.Session, message string) (*model.Post, error)

	submitted []string
}

func (m *mockBoardService) List(ctx context.Context, sess *model.Session) ([]model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sess)
	}
	if !sess.IsAuthenticated() {
		return nil, model.ErrNotMember
	}
	return nil, nil
}

func (m *mockBoardService) Submit(ctx context.Context, sess *model.Session, message string) (*model.Post, error) {
	m.submitted = append(m.submitted, message)
	if m.submitFn != nil {
		return m.submitFn(ctx, sess, message)
	}
	if !sess.IsAuthenticated() {
		return nil, model.ErrNotMember
	}
	return &model.Post{Author: sess.DisplayName, Body: message}, nil
}

func memberSession(userID string) *model.Session {
	return &model.Session{
		ExternalUserID:   userID,
		DisplayName:      "alice",
		AvatarRef:        "a1b2",
		IsVerifiedMember: true,
	}
}

func withSession(r *http.Request, sess *model.Session) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), sess))
}

func newTestViews(t *testing.T) *Views {
	t.Helper()
	views, err := NewViews()
	if err != nil {
		t.Fatalf("NewViews failed: %v", err)
	}
	return views
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
