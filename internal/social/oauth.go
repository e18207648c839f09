package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/socialhub/internal/model"
)

// maxAPIResponseSize はプロバイダーAPIのレスポンスとして読み込む最大バイト数。
const maxAPIResponseSize = 1 << 20

// ProviderConfig はOAuth2プロバイダーの設定。
type ProviderConfig struct {
	ClientID     string
	ClientSecret string

	// テスト用にオーバーライド可能なURL
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// oauthClient はx/oauth2の設定とAPI呼び出し用HTTPクライアントをまとめる。
type oauthClient struct {
	config     oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

func newOAuthClient(cfg ProviderConfig, scopes []string, authStyle oauth2.AuthStyle, httpClient *http.Client) oauthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return oauthClient{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
		},
		apiBaseURL: cfg.APIBaseURL,
		httpClient: httpClient,
	}
}

// withHTTPClient はx/oauth2が内部で使うHTTPクライアントをコンテキストに設定する。
func (c *oauthClient) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *oauthClient) authCodeURL(state, verifier, redirectURL string) string {
	cfg := c.config
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (c *oauthClient) exchange(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error) {
	cfg := c.config
	cfg.RedirectURL = redirectURL

	tok, err := cfg.Exchange(c.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	resp := toOAuthResponse(tok)
	return &resp, nil
}

// apiClient はtokenをそのまま付与するHTTPクライアントを返す。
func (c *oauthClient) apiClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return oauth2.NewClient(c.withHTTPClient(ctx), oauth2.StaticTokenSource(token))
}

// refresh はリフレッシュトークンで新しいトークンを取得する。
// 応答にリフレッシュトークンが含まれない場合は元の値を引き継ぐ。
func (c *oauthClient) refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	expired := *token
	expired.Expiry = time.Now().Add(-time.Minute)
	tok, err := c.config.TokenSource(c.withHTTPClient(ctx), &expired).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tok, nil
}

// callWithToken は保存済みトークンでcallを実行し、実際に使ったトークンを返す。
// 有効期限切れの場合は呼び出し前に、401が返った場合は1回だけ更新して再試行する。
// 更新にはリフレッシュトークンが必要で、ない場合は保存済みトークンをそのまま使う。
func (c *oauthClient) callWithToken(ctx context.Context, stored model.OAuthResponse, call func(*http.Client) error) (model.OAuthResponse, error) {
	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}
	canRefresh := tok.RefreshToken != ""

	if canRefresh && !tok.Valid() {
		fresh, err := c.refresh(ctx, tok)
		if err != nil {
			return stored, err
		}
		tok = fresh
	}

	err := call(c.apiClient(ctx, tok))
	var se *statusError
	if err != nil && canRefresh && errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		fresh, rerr := c.refresh(ctx, tok)
		if rerr != nil {
			return toOAuthResponse(tok), fmt.Errorf("%w (%v)", err, rerr)
		}
		tok = fresh
		err = call(c.apiClient(ctx, tok))
	}
	return toOAuthResponse(tok), err
}

func toOAuthResponse(tok *oauth2.Token) model.OAuthResponse {
	return model.OAuthResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
}

// statusError は期待しないHTTPステータスを表す。
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// doJSON はリクエストを送信し、期待するステータスの場合にレスポンスをoutへデコードする。
func doJSON(client *http.Client, req *http.Request, wantStatus int, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return &statusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
