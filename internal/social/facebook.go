package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hitoshi/socialhub/internal/model"
)

const (
	facebookGraphVersion      = "v19.0"
	defaultFacebookAuthURL    = "https://www.facebook.com/" + facebookGraphVersion + "/dialog/oauth"
	defaultFacebookTokenURL   = "https://graph.facebook.com/" + facebookGraphVersion + "/oauth/access_token"
	defaultFacebookAPIBaseURL = "https://graph.facebook.com/" + facebookGraphVersion
)

// FacebookProvider はFacebook（Graph API）との連携を提供する。
type FacebookProvider struct {
	client oauthClient
}

// NewFacebookProvider はFacebookProviderを生成する。httpClientがnilの場合はhttp.DefaultClientを使う。
func NewFacebookProvider(cfg ProviderConfig, httpClient *http.Client) *FacebookProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultFacebookAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultFacebookTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultFacebookAPIBaseURL
	}
	scopes := []string{"public_profile"}
	return &FacebookProvider{client: newOAuthClient(cfg, scopes, oauth2.AuthStyleInParams, httpClient)}
}

func (p *FacebookProvider) ID() ProviderID      { return Facebook }
func (p *FacebookProvider) DisplayName() string { return "Facebook" }

// AuthCodeURL は認可画面のURLを返す。
func (p *FacebookProvider) AuthCodeURL(state, verifier, redirectURL string) string {
	return p.client.authCodeURL(state, verifier, redirectURL)
}

// Exchange は認可コードをトークンに交換する。
func (p *FacebookProvider) Exchange(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error) {
	return p.client.exchange(ctx, code, verifier, redirectURL)
}

type facebookUserResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Link    string `json:"link"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// FetchProfile は /me からプロフィールを取得する。
func (p *FacebookProvider) FetchProfile(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.client.apiBaseURL+"/me?fields=id,name,link,picture", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}

	var user facebookUserResponse
	client := p.client.apiClient(ctx, &oauth2.Token{AccessToken: token.AccessToken, TokenType: token.TokenType})
	if err := doJSON(client, req, http.StatusOK, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch facebook profile: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("empty user id in facebook profile")
	}

	return &model.SocialProfile{
		ProviderUserID: user.ID,
		DisplayName:    user.Name,
		ProfileURL:     user.Link,
		ImageURL:       user.Picture.Data.URL,
	}, nil
}

// PostStatus は /me/feed にメッセージを投稿する。
func (p *FacebookProvider) PostStatus(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
	form := url.Values{"message": {message}}.Encode()

	used, err := p.client.callWithToken(ctx, token, func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.client.apiBaseURL+"/me/feed", strings.NewReader(form))
		if err != nil {
			return fmt.Errorf("failed to create feed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return doJSON(client, req, http.StatusOK, nil)
	})
	if err != nil {
		return used, fmt.Errorf("failed to post to facebook feed: %w", err)
	}
	return used, nil
}

// compile-time interface check
var _ Provider = (*FacebookProvider)(nil)
