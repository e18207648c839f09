package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/socialhub/internal/model"
)

const (
	defaultTwitterAuthURL    = "https://twitter.com/i/oauth2/authorize"
	defaultTwitterTokenURL   = "https://api.twitter.com/2/oauth2/token"
	defaultTwitterAPIBaseURL = "https://api.twitter.com"
	twitterProfileBaseURL    = "https://twitter.com/"
)

// TwitterProvider はTwitter（OAuth 2.0 + PKCE, API v2）との連携を提供する。
type TwitterProvider struct {
	client oauthClient
}

// NewTwitterProvider はTwitterProviderを生成する。httpClientがnilの場合はhttp.DefaultClientを使う。
func NewTwitterProvider(cfg ProviderConfig, httpClient *http.Client) *TwitterProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultTwitterAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTwitterTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultTwitterAPIBaseURL
	}
	scopes := []string{"tweet.read", "tweet.write", "users.read", "offline.access"}
	return &TwitterProvider{client: newOAuthClient(cfg, scopes, oauth2.AuthStyleInHeader, httpClient)}
}

func (p *TwitterProvider) ID() ProviderID      { return Twitter }
func (p *TwitterProvider) DisplayName() string { return "Twitter" }

// AuthCodeURL は認可画面のURLを返す。
func (p *TwitterProvider) AuthCodeURL(state, verifier, redirectURL string) string {
	return p.client.authCodeURL(state, verifier, redirectURL)
}

// Exchange は認可コードをトークンに交換する。
func (p *TwitterProvider) Exchange(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error) {
	return p.client.exchange(ctx, code, verifier, redirectURL)
}

type twitterUserResponse struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

// FetchProfile は /2/users/me からプロフィールを取得する。
func (p *TwitterProvider) FetchProfile(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.client.apiBaseURL+"/2/users/me?user.fields=profile_image_url", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}

	var user twitterUserResponse
	client := p.client.apiClient(ctx, &oauth2.Token{AccessToken: token.AccessToken, TokenType: token.TokenType})
	if err := doJSON(client, req, http.StatusOK, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch twitter profile: %w", err)
	}
	if user.Data.ID == "" {
		return nil, fmt.Errorf("empty user id in twitter profile")
	}

	profile := &model.SocialProfile{
		ProviderUserID: user.Data.ID,
		DisplayName:    user.Data.Name,
		ImageURL:       user.Data.ProfileImageURL,
	}
	if user.Data.Username != "" {
		profile.ProfileURL = twitterProfileBaseURL + user.Data.Username
		if profile.DisplayName == "" {
			profile.DisplayName = user.Data.Username
		}
	}
	return profile, nil
}

// PostStatus は /2/tweets にツイートを投稿する。
// 投稿に使ったトークンを返す。更新された場合は保存済みの値と異なる。
func (p *TwitterProvider) PostStatus(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return token, fmt.Errorf("failed to encode tweet: %w", err)
	}

	used, err := p.client.callWithToken(ctx, token, func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.client.apiBaseURL+"/2/tweets", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create tweet request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return doJSON(client, req, http.StatusCreated, nil)
	})
	if err != nil {
		return used, fmt.Errorf("failed to post tweet: %w", err)
	}
	return used, nil
}

// compile-time interface check
var _ Provider = (*TwitterProvider)(nil)
