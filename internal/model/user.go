// Package model はドメインモデルを定義する。
package model

import "time"

// User はメールアドレスとパスワードで登録されたローカルアカウントを表す。
// Passwordにはbcryptハッシュのみを保持し、平文は保持しない。
type User struct {
	ID        int64
	Email     string
	Password  string
	Active    bool
	Roles     []Role
	CreatedAt time.Time
}

// HasRole は指定名のロールを持つかどうかを返す。
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role はユーザーに付与されるロールを表す。
// ロールは事前投入される前提で、アプリケーションのフローからは作成しない。
type Role struct {
	ID          int64
	Name        string
	Description string
}

// Connection はローカルユーザーとソーシャルプロバイダー上のアカウントの紐付けを表す。
// プロバイダーAPIを呼び出すためのアクセストークンを含む。
type Connection struct {
	ID             int64
	UserID         int64
	ProviderID     string
	ProviderUserID string
	AccessToken    string
	Secret         string // OAuth2ではリフレッシュトークンを格納する
	TokenExpiry    time.Time
	DisplayName    string
	ProfileURL     string
	ImageURL       string
	Rank           int
}

// Token は保存済みのトークンをOAuthResponseとして返す。
func (c *Connection) Token() OAuthResponse {
	return OAuthResponse{
		AccessToken:  c.AccessToken,
		RefreshToken: c.Secret,
		TokenType:    "Bearer",
		Expiry:       c.TokenExpiry,
	}
}

// TokenChanged はtokenが保存済みのトークンと異なるかを返す。
func (c *Connection) TokenChanged(token OAuthResponse) bool {
	return token.AccessToken != c.AccessToken ||
		token.RefreshToken != c.Secret ||
		!token.Expiry.Equal(c.TokenExpiry)
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    int64
	Remember  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
