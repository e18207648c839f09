package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/socialhub/internal/model"
)

// ビジターセッション内のキー
const (
	keyPendingSocialLogin = "pending_social_login"
	keyFlashes            = "flashes"
	keyOAuthStatePrefix   = "oauth_state:"
)

// Flash は次のページ表示で一度だけ表示される通知を表す。
type Flash struct {
	Category string `json:"category"` // success, info, error
	Message  string `json:"message"`
}

// OAuthState はOAuthハンドシェイク開始時に保存するstateとPKCE検証子。
type OAuthState struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	Purpose  string `json:"purpose"` // login, connect
}

// Manager はビジターIDごとにストアのキー空間を分け、型付きのアクセサを提供する。
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager はManagerを生成する。ttlはビジターセッションの保持期間。
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl}
}

func visitorKey(visitorID, key string) string {
	return "visitor:" + visitorID + ":" + key
}

// StashPendingLogin は未解決のソーシャルログインを保存する。既存の値は上書きする。
func (m *Manager) StashPendingLogin(ctx context.Context, visitorID string, pending model.PendingSocialLogin) error {
	return m.putJSON(ctx, visitorKey(visitorID, keyPendingSocialLogin), pending)
}

// PopPendingLogin は未解決のソーシャルログインを取り出して削除する。
// 存在しない場合はnilを返す。
func (m *Manager) PopPendingLogin(ctx context.Context, visitorID string) (*model.PendingSocialLogin, error) {
	var pending model.PendingSocialLogin
	ok, err := m.takeJSON(ctx, visitorKey(visitorID, keyPendingSocialLogin), &pending)
	if err != nil || !ok {
		return nil, err
	}
	return &pending, nil
}

// AddFlash はフラッシュメッセージを追加する。
// 同じビジターからの並行リクエストでも追加したメッセージは失われない。
func (m *Manager) AddFlash(ctx context.Context, visitorID string, flash Flash) error {
	b, err := json.Marshal(flash)
	if err != nil {
		return fmt.Errorf("failed to encode flash: %w", err)
	}
	if err := m.store.Append(ctx, visitorKey(visitorID, keyFlashes), b, m.ttl); err != nil {
		return fmt.Errorf("failed to save flash: %w", err)
	}
	return nil
}

// PopFlashes は保存されたフラッシュメッセージをすべて取り出して削除する。
// 読み取れない要素は読み飛ばす。
func (m *Manager) PopFlashes(ctx context.Context, visitorID string) ([]Flash, error) {
	raw, err := m.store.TakeAll(ctx, visitorKey(visitorID, keyFlashes))
	if err != nil {
		return nil, fmt.Errorf("failed to take flashes: %w", err)
	}

	flashes := make([]Flash, 0, len(raw))
	for _, b := range raw {
		var f Flash
		if err := json.Unmarshal(b, &f); err != nil {
			continue
		}
		flashes = append(flashes, f)
	}
	return flashes, nil
}

// SaveOAuthState はプロバイダーごとのOAuth stateを保存する。
func (m *Manager) SaveOAuthState(ctx context.Context, visitorID, providerID string, state OAuthState) error {
	return m.putJSON(ctx, visitorKey(visitorID, keyOAuthStatePrefix+providerID), state)
}

// TakeOAuthState はプロバイダーごとのOAuth stateを取り出して削除する。
// 存在しない場合はnilを返す。
func (m *Manager) TakeOAuthState(ctx context.Context, visitorID, providerID string) (*OAuthState, error) {
	var state OAuthState
	ok, err := m.takeJSON(ctx, visitorKey(visitorID, keyOAuthStatePrefix+providerID), &state)
	if err != nil || !ok {
		return nil, err
	}
	return &state, nil
}

func (m *Manager) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := m.store.Set(ctx, key, b, m.ttl); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (m *Manager) takeJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := m.store.Take(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to take %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
