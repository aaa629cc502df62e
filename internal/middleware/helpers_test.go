package middleware

import (
	"net/http"

	"github.com/hitoshi/memberboard/internal/model"
)

// --- モック定義 ---

type mockStore struct {
	loadFn func(r *http.Request) (*model.Session, error)
}

func (m *mockStore) Load(r *http.Request) (*model.Session, error) {
	if m.loadFn != nil {
		return m.loadFn(r)
	}
	return nil, nil
}

func (m *mockStore) Save(_ http.ResponseWriter, _ *http.Request, _ *model.Session) error {
	return nil
}

func (m *mockStore) Clear(_ http.ResponseWriter, _ *http.Request) error {
	return nil
}

func memberSession(userID string) *model.Session {
	return &model.Session{
		ExternalUserID:   userID,
		DisplayName:      "alice",
		IsVerifiedMember: true,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
