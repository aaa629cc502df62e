package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDiscord はDiscord APIのテスト用サーバー。
type fakeDiscord struct {
	tokenStatus  int
	tokenBody    map[string]any
	guildsStatus int
	guilds       []map[string]any
	userStatus   int
	user         map[string]any
	delay        time.Duration

	tokenCalls  atomic.Int32
	guildsCalls atomic.Int32
	userCalls   atomic.Int32

	mu            sync.Mutex
	lastTokenForm url.Values
	lastAuthz     string
}

func (f *fakeDiscord) tokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenForm
}

func (f *fakeDiscord) authorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuthz
}

func newFakeDiscord(t *testing.T) (*fakeDiscord, *httptest.Server) {
	t.Helper()
	f := &fakeDiscord{
		tokenStatus:  http.StatusOK,
		tokenBody:    map[string]any{"access_token": "test-access-token", "token_type": "Bearer"},
		guildsStatus: http.StatusOK,
		guilds:       []map[string]any{{"id": "G1", "name": "Guild One"}},
		userStatus:   http.StatusOK,
		user:         map[string]any{"id": "U1", "username": "alice", "avatar": "a.png"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastTokenForm = r.PostForm
		f.mu.Unlock()
		writeJSON(w, f.tokenStatus, f.tokenBody)
	})
	mux.HandleFunc("GET /users/@me/guilds", func(w http.ResponseWriter, r *http.Request) {
		f.guildsCalls.Add(1)
		f.mu.Lock()
		f.lastAuthz = r.Header.Get("Authorization")
		f.mu.Unlock()
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		writeJSON(w, f.guildsStatus, f.guilds)
	})
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		f.userCalls.Add(1)
		writeJSON(w, f.userStatus, f.user)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return f, server
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestDiscordProvider(baseURL string) *DiscordOAuthProvider {
	return NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		APIBaseURL:   baseURL,
		Timeout:      2 * time.Second,
	})
}

func TestDiscordOAuthProvider_GetLoginURL(t *testing.T) {
	p := newTestDiscordProvider("https://discord.example.com/api")

	loginURL := p.GetLoginURL("test-state")

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != "https://discord.example.com/api/oauth2/authorize" {
		t.Errorf("authorize endpoint = %q", got)
	}

	q := u.Query()
	wantParams := map[string]string{
		"client_id":     "test-client-id",
		"redirect_uri":  "http://localhost:8080/callback",
		"response_type": "code",
		"scope":         "identify guilds",
		"prompt":        "consent",
		"state":         "test-state",
	}
	for key, want := range wantParams {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestDiscordOAuthProvider_ExchangeCode_Success(t *testing.T) {
	f, server := newFakeDiscord(t)
	p := newTestDiscordProvider(server.URL)

	token, err := p.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token != "test-access-token" {
		t.Errorf("token = %q, want %q", token, "test-access-token")
	}
	if n := f.tokenCalls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}

	// クライアント認証情報はボディで送る
	form := f.tokenForm()
	wantForm := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "auth-code",
		"redirect_uri":  "http://localhost:8080/callback",
		"client_id":     "test-client-id",
		"client_secret": "test-client-secret",
	}
	for key, want := range wantForm {
		if got := form.Get(key); got != want {
			t.Errorf("form %s = %q, want %q", key, got, want)
		}
	}
}

func TestDiscordOAuthProvider_ExchangeCode_Unauthorized_NotRetried(t *testing.T) {
	f, server := newFakeDiscord(t)
	f.tokenStatus = http.StatusUnauthorized
	f.tokenBody = map[string]any{"error": "invalid_grant"}
	p := newTestDiscordProvider(server.URL)

	_, err := p.ExchangeCode(context.Background(), "used-code")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if n := f.tokenCalls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want exactly 1", n)
	}
}

func TestDiscordOAuthProvider_ExchangeCode_MissingAccessToken(t *testing.T) {
	f, server := newFakeDiscord(t)
	f.tokenBody = map[string]any{"token_type": "Bearer"}
	p := newTestDiscordProvider(server.URL)

	if _, err := p.ExchangeCode(context.Background(), "auth-code"); err == nil {
		t.Fatal("expected error when access_token is missing")
	}
}

func TestDiscordOAuthProvider_FetchGroups_Success(t *testing.T) {
	f, server := newFakeDiscord(t)
	f.guilds = []map[string]any{
		{"id": "G2", "name": "Other"},
		{"id": "G1", "name": "Guild One"},
	}
	p := newTestDiscordProvider(server.URL)

	groups, err := p.FetchGroups(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(groups) != 2 || groups[0].ID != "G2" || groups[1].ID != "G1" {
		t.Errorf("groups = %+v", groups)
	}
	if groups[1].Name != "Guild One" {
		t.Errorf("Name = %q, want %q", groups[1].Name, "Guild One")
	}
	if got := f.authorization(); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}
}

func TestDiscordOAuthProvider_FetchGroups_ServerError(t *testing.T) {
	f, server := newFakeDiscord(t)
	f.guildsStatus = http.StatusInternalServerError
	p := newTestDiscordProvider(server.URL)

	_, err := p.FetchGroups(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should include status code, got %v", err)
	}
}

func TestDiscordOAuthProvider_FetchGroups_Timeout(t *testing.T) {
	f, server := newFakeDiscord(t)
	f.delay = 500 * time.Millisecond
	p := NewDiscordOAuthProvider(DiscordOAuthConfig{
		ClientID:   "test-client-id",
		APIBaseURL: server.URL,
		Timeout:    50 * time.Millisecond,
	})

	start := time.Now()
	_, err := p.FetchGroups(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed >= f.delay {
		t.Errorf("call took %v, should be bounded by the provider timeout", elapsed)
	}
}

func TestDiscordOAuthProvider_FetchProfile_Success(t *testing.T) {
	_, server := newFakeDiscord(t)
	p := newTestDiscordProvider(server.URL)

	profile, err := p.FetchProfile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if profile.UserID != "U1" || profile.Username != "alice" || profile.AvatarRef != "a.png" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestDiscordOAuthProvider_FetchProfile_NullAvatar(t *testing.T) {
	f, server := newFakeDiscord(t)
	f.user = map[string]any{"id": "U2", "username": "bob", "avatar": nil}
	p := newTestDiscordProvider(server.URL)

	profile, err := p.FetchProfile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if profile.AvatarRef != "" {
		t.Errorf("AvatarRef = %q, want empty", profile.AvatarRef)
	}
}

func TestDiscordOAuthProvider_FetchProfile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		user   map[string]any
	}{
		{"unauthorized", http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized"}},
		{"missing id", http.StatusOK, map[string]any{"username": "ghost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, server := newFakeDiscord(t)
			f.userStatus = tt.status
			f.user = tt.user
			p := newTestDiscordProvider(server.URL)

			if _, err := p.FetchProfile(context.Background(), "tok"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
