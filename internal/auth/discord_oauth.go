package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultDiscordAPIBaseURL = "https://discord.com/api"
	defaultProviderTimeout   = 10 * time.Second

	// maxResponseBytes はIdPレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
)

// discordScopes はユーザー識別とギルド一覧の読み取りに必要なスコープ。
var discordScopes = []string{"identify", "guilds"}

// DiscordOAuthConfig はDiscord OAuthプロバイダーの設定。
type DiscordOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なAPIベースURL
	APIBaseURL string

	// 外部呼び出し1回あたりのタイムアウト。全呼び出しで共通。
	Timeout time.Duration

	// 未指定の場合はTimeoutを設定したクライアントを生成する
	HTTPClient *http.Client
}

// DiscordOAuthProvider はDiscord OAuth2による認証とギルド所属の取得を提供する。
type DiscordOAuthProvider struct {
	oauth      *oauth2.Config
	apiBaseURL string
	timeout    time.Duration
	client     *http.Client
}

// NewDiscordOAuthProvider はDiscordOAuthProviderを生成する。
func NewDiscordOAuthProvider(config DiscordOAuthConfig) *DiscordOAuthProvider {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultDiscordAPIBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultProviderTimeout
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &DiscordOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       discordScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.APIBaseURL + "/oauth2/authorize",
				TokenURL: config.APIBaseURL + "/oauth2/token",
				// 認可コードは1回限りのため、認証方式の自動判定による再送を行わない
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: config.APIBaseURL,
		timeout:    config.Timeout,
		client:     client,
	}
}

// GetLoginURL はDiscordの認可URLを生成する。
// スコープにはidentify, guildsを含み、毎回明示的な同意を求める。
func (p *DiscordOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// トランスポートエラー、2xx以外のレスポンス、access_tokenの欠落はすべてエラーとなる。
func (p *DiscordOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return token.AccessToken, nil
}

// discordUser はDiscordの /users/@me エンドポイントのレスポンス。
type discordUser struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
}

// FetchGroups はアクセストークンでユーザーの所属ギルド一覧を取得する。
func (p *DiscordOAuthProvider) FetchGroups(ctx context.Context, accessToken string) ([]Group, error) {
	var groups []Group
	if err := p.getJSON(ctx, "/users/@me/guilds", accessToken, &groups); err != nil {
		return nil, fmt.Errorf("failed to fetch guilds: %w", err)
	}
	return groups, nil
}

// FetchProfile はアクセストークンでユーザー情報を取得する。
func (p *DiscordOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	var user discordUser
	if err := p.getJSON(ctx, "/users/@me", accessToken, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	if user.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}

	profile := &Profile{
		UserID:   user.ID,
		Username: user.Username,
	}
	if user.Avatar != nil {
		profile.AvatarRef = *user.Avatar
	}
	return profile, nil
}

// getJSON はBearerトークン付きのGETリクエストを送り、JSONレスポンスをoutにデコードする。
func (p *DiscordOAuthProvider) getJSON(ctx context.Context, path, accessToken string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// compile-time interface check
var _ IdentityProvider = (*DiscordOAuthProvider)(nil)
