package model

import "time"

// OAuthResponse はOAuthハンドシェイク完了時にプロバイダーから受け取った応答を表す。
// 未解決のソーシャルログインとしてセッションに退避するため、JSONで直列化できる形を保つ。
type OAuthResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// PendingSocialLogin は既存アカウントに解決できなかったソーシャルログインを表す。
// 同じブラウザセッションでローカル登録が完了した時点で一度だけ読み出され、消費される。
type PendingSocialLogin struct {
	ProviderID    string        `json:"provider_id"`
	OAuthResponse OAuthResponse `json:"oauth_response"`
}

// SocialProfile はプロバイダーAPIから取得したユーザープロフィールを表す。
type SocialProfile struct {
	ProviderUserID string
	DisplayName    string
	ProfileURL     string
	ImageURL       string
}
