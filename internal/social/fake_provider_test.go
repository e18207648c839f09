package social

import (
	"context"

	"github.com/hitoshi/socialhub/internal/model"
)

type fakeProvider struct {
	id   ProviderID
	name string

	exchangeFn     func(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error)
	fetchProfileFn func(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error)
	postStatusFn   func(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error)
}

func (f *fakeProvider) ID() ProviderID      { return f.id }
func (f *fakeProvider) DisplayName() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state, verifier, redirectURL string) string {
	return "https://auth.example.com/?state=" + state + "&redirect_uri=" + redirectURL
}

func (f *fakeProvider) Exchange(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error) {
	if f.exchangeFn != nil {
		return f.exchangeFn(ctx, code, verifier, redirectURL)
	}
	return &model.OAuthResponse{AccessToken: "token-" + code}, nil
}

func (f *fakeProvider) FetchProfile(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error) {
	if f.fetchProfileFn != nil {
		return f.fetchProfileFn(ctx, token)
	}
	return &model.SocialProfile{ProviderUserID: "uid-" + token.AccessToken, DisplayName: "someone"}, nil
}

func (f *fakeProvider) PostStatus(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error) {
	if f.postStatusFn != nil {
		return f.postStatusFn(ctx, token, message)
	}
	return token, nil
}

var _ Provider = (*fakeProvider)(nil)
