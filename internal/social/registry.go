// Package social はソーシャルプロバイダーとの連携（OAuthハンドシェイク、紐付けの保存、API呼び出し）を提供する。
package social

import (
	"context"
	"fmt"

	"github.com/hitoshi/socialhub/internal/model"
)

// ProviderID は対応するソーシャルプロバイダーの識別子。
type ProviderID string

// 対応プロバイダー
const (
	Twitter  ProviderID = "twitter"
	Facebook ProviderID = "facebook"
)

// knownProviders は受け付けるプロバイダーIDの閉じた集合。表示順を兼ねる。
var knownProviders = []ProviderID{Twitter, Facebook}

// ParseProviderID は文字列をProviderIDに変換する。
// 未知の識別子はmodel.ErrUnknownProviderで拒否する。
func ParseProviderID(s string) (ProviderID, error) {
	for _, id := range knownProviders {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", model.ErrUnknownProvider, s)
}

// Provider は1つのソーシャルプロバイダーの機能を表す。
type Provider interface {
	ID() ProviderID
	DisplayName() string
	// AuthCodeURL は認可画面のURLを返す。verifierはPKCEの検証子。
	AuthCodeURL(state, verifier, redirectURL string) string
	// Exchange は認可コードをトークンに交換する。
	Exchange(ctx context.Context, code, verifier, redirectURL string) (*model.OAuthResponse, error)
	// FetchProfile はトークンの持ち主のプロフィールを取得する。
	FetchProfile(ctx context.Context, token model.OAuthResponse) (*model.SocialProfile, error)
	// PostStatus は保存済みトークンでステータスを投稿し、実際に使ったトークンを返す。
	// 期限切れなどでトークンを更新した場合、返り値は引数と異なる。
	PostStatus(ctx context.Context, token model.OAuthResponse, message string) (model.OAuthResponse, error)
}

// Registry はProviderIDから設定済みのProviderを引く。
type Registry struct {
	providers map[ProviderID]Provider
}

// NewRegistry はRegistryを生成する。同じIDのプロバイダーは後勝ち。
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[ProviderID]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.ID()] = p
	}
	return r
}

// Lookup は識別子に対応するProviderを返す。
// 未知の識別子、または資格情報が未設定で登録されていないプロバイダーはmodel.ErrUnknownProviderを返す。
func (r *Registry) Lookup(id string) (Provider, error) {
	pid, err := ParseProviderID(id)
	if err != nil {
		return nil, err
	}
	p, ok := r.providers[pid]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", model.ErrUnknownProvider, id)
	}
	return p, nil
}

// Providers は登録済みのProviderを表示順で返す。
func (r *Registry) Providers() []Provider {
	list := make([]Provider, 0, len(r.providers))
	for _, id := range knownProviders {
		if p, ok := r.providers[id]; ok {
			list = append(list, p)
		}
	}
	return list
}

// DisplayName は識別子に対応する表示名を返す。未知の場合はfalseを返す。
func (r *Registry) DisplayName(id string) (string, bool) {
	p, err := r.Lookup(id)
	if err != nil {
		return "", false
	}
	return p.DisplayName(), true
}
