package web

import "github.com/hitoshi/socialhub/internal/social"

// ProviderOption はソーシャルログインボタン1つ分。
type ProviderOption struct {
	ID          string
	DisplayName string
}

// LoginPage はログイン画面の入力。
type LoginPage struct {
	Email     string
	Remember  bool
	Errors    map[string]string
	Providers []ProviderOption
}

// RegisterPage は登録画面の入力。
// SocialLoginFailedがtrueでProviderNameが解決できた場合、ソーシャルログイン失敗の案内を表示する。
type RegisterPage struct {
	Email             string
	Errors            map[string]string
	SocialLoginFailed bool
	ProviderID        string
	ProviderName      string
}

// ThanksPage はセッションを開始できなかった登録完了画面の入力。
type ThanksPage struct {
	Email string
}

// ProfilePage はプロフィール画面の入力。
type ProfilePage struct {
	Connections []social.ProviderConnection
}

// ErrorPage はエラー画面の入力。
type ErrorPage struct {
	Status  int
	Message string
	Action  string
}
