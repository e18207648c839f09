package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/repository"
	"github.com/hitoshi/socialhub/internal/security"
)

// OAuthPurpose はOAuthハンドシェイクを開始した目的を表す。
type OAuthPurpose string

// ハンドシェイクの目的
const (
	PurposeLogin   OAuthPurpose = "login"
	PurposeConnect OAuthPurpose = "connect"
)

// AuthRequest はOAuthハンドシェイク開始時に生成される値をまとめる。
// StateとVerifierはコールバックで照合するためビジターセッションに保存する。
type AuthRequest struct {
	URL      string
	State    string
	Verifier string
}

// LoginResult はソーシャルログインの照合結果を表す。
// Connectionがnilの場合、OAuth応答はどのローカルアカウントにも紐付いていない。
type LoginResult struct {
	Connection *model.Connection
	Response   model.OAuthResponse
}

// Gateway はプロバイダーレジストリと紐付けの保存をまとめたソーシャル連携の窓口。
type Gateway struct {
	registry  *Registry
	connRepo  repository.ConnectionRepository
	sanitizer *security.ProfileSanitizer
	baseURL   string
}

// NewGateway はGatewayを生成する。baseURLはコールバックURLの組み立てに使う。
func NewGateway(registry *Registry, connRepo repository.ConnectionRepository, sanitizer *security.ProfileSanitizer, baseURL string) *Gateway {
	return &Gateway{
		registry:  registry,
		connRepo:  connRepo,
		sanitizer: sanitizer,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Registry は登録済みプロバイダーのレジストリを返す。
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// CallbackURL は目的別のコールバックURLを返す。
func (g *Gateway) CallbackURL(id ProviderID, purpose OAuthPurpose) string {
	return fmt.Sprintf("%s/%s/%s/callback", g.baseURL, purpose, id)
}

// BeginAuth はOAuthハンドシェイクを開始するための認可URLとstate、PKCE検証子を生成する。
func (g *Gateway) BeginAuth(providerID string, purpose OAuthPurpose, state string) (*AuthRequest, error) {
	p, err := g.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()
	return &AuthRequest{
		URL:      p.AuthCodeURL(state, verifier, g.CallbackURL(p.ID(), purpose)),
		State:    state,
		Verifier: verifier,
	}, nil
}

// CompleteAuth は認可コードをトークンに交換する。
func (g *Gateway) CompleteAuth(ctx context.Context, providerID string, purpose OAuthPurpose, code, verifier string) (*model.OAuthResponse, error) {
	p, err := g.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}
	resp, err := p.Exchange(ctx, code, verifier, g.CallbackURL(p.ID(), purpose))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.DisplayName(), err)
	}
	return resp, nil
}

// ResolveLogin はOAuth応答の持ち主に紐付いたConnectionを探す。
// 見つからない場合もエラーにはせず、Connectionがnilの結果を返す。
func (g *Gateway) ResolveLogin(ctx context.Context, providerID string, resp model.OAuthResponse) (*LoginResult, error) {
	p, err := g.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	profile, err := p.FetchProfile(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.DisplayName(), err)
	}

	conn, err := g.connRepo.FindByProviderUserID(ctx, string(p.ID()), profile.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find connection: %w", err)
	}

	return &LoginResult{Connection: conn, Response: resp}, nil
}

// Connect はOAuth応答をユーザーに紐付けてConnectionを作成する。
// プロバイダーアカウントが既に紐付いている場合はmodel.ErrConnectionExistsを返す。
func (g *Gateway) Connect(ctx context.Context, providerID string, resp model.OAuthResponse, userID int64) (*model.Connection, error) {
	// 1. プロバイダーを解決しプロフィールを取得
	p, err := g.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}
	profile, err := p.FetchProfile(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.DisplayName(), err)
	}

	// 2. 同一プロバイダー内での順位を決定
	count, err := g.connRepo.CountByUserAndProvider(ctx, userID, string(p.ID()))
	if err != nil {
		return nil, fmt.Errorf("failed to count connections: %w", err)
	}

	// 3. 無害化したプロフィールで保存
	conn := &model.Connection{
		UserID:         userID,
		ProviderID:     string(p.ID()),
		ProviderUserID: profile.ProviderUserID,
		AccessToken:    resp.AccessToken,
		Secret:         resp.RefreshToken,
		TokenExpiry:    resp.Expiry,
		DisplayName:    g.sanitizer.DisplayName(profile.DisplayName),
		ProfileURL:     g.sanitizer.URL(profile.ProfileURL),
		ImageURL:       g.sanitizer.URL(profile.ImageURL),
		Rank:           count + 1,
	}
	if err := g.connRepo.Create(ctx, conn); err != nil {
		if errors.Is(err, model.ErrConnectionExists) {
			return nil, model.ErrConnectionExists
		}
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	slog.Info("connection created",
		slog.Int64("user_id", userID),
		slog.String("provider", conn.ProviderID),
		slog.Int("rank", conn.Rank),
	)
	return conn, nil
}

// GetConnection はユーザーの指定プロバイダーに対する代表のConnectionを返す。
// 紐付けがない場合はnilを返す。
func (g *Gateway) GetConnection(ctx context.Context, userID int64, providerID string) (*model.Connection, error) {
	p, err := g.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}
	conn, err := g.connRepo.FindPrimary(ctx, userID, string(p.ID()))
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ProviderConnection は表示用にプロバイダーとその紐付けを組にしたもの。
type ProviderConnection struct {
	ProviderID  ProviderID
	DisplayName string
	Connection  *model.Connection
}

// ListConnections は登録済みの全プロバイダーについてユーザーの紐付けを返す。
func (g *Gateway) ListConnections(ctx context.Context, userID int64) ([]ProviderConnection, error) {
	providers := g.registry.Providers()
	list := make([]ProviderConnection, 0, len(providers))
	for _, p := range providers {
		conn, err := g.connRepo.FindPrimary(ctx, userID, string(p.ID()))
		if err != nil {
			return nil, fmt.Errorf("failed to get %s connection: %w", p.ID(), err)
		}
		list = append(list, ProviderConnection{
			ProviderID:  p.ID(),
			DisplayName: p.DisplayName(),
			Connection:  conn,
		})
	}
	return list, nil
}

// PostStatus はユーザーの紐付けを使ってプロバイダーにステータスを投稿する。
// 紐付けがない場合はmodel.ErrConnectionNotFoundを返す。
// 投稿中にトークンが更新された場合は、投稿の成否にかかわらず新しいトークンを保存する。
func (g *Gateway) PostStatus(ctx context.Context, userID int64, providerID, message string) error {
	conn, err := g.GetConnection(ctx, userID, providerID)
	if err != nil {
		return err
	}
	if conn == nil {
		return model.ErrConnectionNotFound
	}
	p, err := g.registry.Lookup(conn.ProviderID)
	if err != nil {
		return err
	}

	used, postErr := p.PostStatus(ctx, conn.Token(), message)
	if conn.TokenChanged(used) {
		if err := g.connRepo.UpdateToken(ctx, conn.ID, used); err != nil {
			slog.Error("failed to save refreshed token",
				slog.Int64("connection_id", conn.ID),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Info("provider token refreshed",
				slog.Int64("user_id", userID),
				slog.String("provider", conn.ProviderID),
			)
		}
	}
	if postErr != nil {
		return fmt.Errorf("%s: %w", p.DisplayName(), postErr)
	}

	slog.Info("status posted",
		slog.Int64("user_id", userID),
		slog.String("provider", conn.ProviderID),
	)
	return nil
}
