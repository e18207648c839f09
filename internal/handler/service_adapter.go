package handler

import (
	"context"

	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/social"
	"github.com/hitoshi/socialhub/internal/web"
)

// GatewayAdapter は social.Gateway を SocialService に適合させるアダプタ。
type GatewayAdapter struct {
	gw *social.Gateway
}

// NewGatewayAdapter はGatewayAdapterを生成する。
func NewGatewayAdapter(gw *social.Gateway) *GatewayAdapter {
	return &GatewayAdapter{gw: gw}
}

// ProviderOptions は登録済みプロバイダーを表示順で返す。
func (a *GatewayAdapter) ProviderOptions() []web.ProviderOption {
	providers := a.gw.Registry().Providers()
	options := make([]web.ProviderOption, len(providers))
	for i, p := range providers {
		options[i] = web.ProviderOption{ID: string(p.ID()), DisplayName: p.DisplayName()}
	}
	return options
}

// DisplayName は登録済みプロバイダーの表示名を返す。
func (a *GatewayAdapter) DisplayName(providerID string) (string, bool) {
	return a.gw.Registry().DisplayName(providerID)
}

// BeginAuth はOAuthハンドシェイクを開始する。
func (a *GatewayAdapter) BeginAuth(providerID string, purpose social.OAuthPurpose, state string) (*social.AuthRequest, error) {
	return a.gw.BeginAuth(providerID, purpose, state)
}

// CompleteAuth は認可コードをトークンに交換する。
func (a *GatewayAdapter) CompleteAuth(ctx context.Context, providerID string, purpose social.OAuthPurpose, code, verifier string) (*model.OAuthResponse, error) {
	return a.gw.CompleteAuth(ctx, providerID, purpose, code, verifier)
}

// Connect はOAuth応答をユーザーに紐付ける。
func (a *GatewayAdapter) Connect(ctx context.Context, providerID string, resp model.OAuthResponse, userID int64) (*model.Connection, error) {
	return a.gw.Connect(ctx, providerID, resp, userID)
}

// ListConnections はプロバイダーごとのユーザーの紐付けを返す。
func (a *GatewayAdapter) ListConnections(ctx context.Context, userID int64) ([]social.ProviderConnection, error) {
	return a.gw.ListConnections(ctx, userID)
}

// PostStatus はプロバイダーにステータスを投稿する。
func (a *GatewayAdapter) PostStatus(ctx context.Context, userID int64, providerID, message string) error {
	return a.gw.PostStatus(ctx, userID, providerID, message)
}

// compile-time interface check
var _ SocialService = (*GatewayAdapter)(nil)
