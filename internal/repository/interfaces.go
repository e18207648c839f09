// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/socialhub/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成し、採番されたIDとcreated_atをuserに設定する。
	// メールアドレスが重複する場合はmodel.ErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// メールアドレスは大文字小文字を区別せずに比較する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ListAll は全ユーザーをロール付きでID順に取得する。
	ListAll(ctx context.Context) ([]model.User, error)
}

// ConnectionRepository はソーシャルプロバイダー紐付け情報の永続化インターフェース。
type ConnectionRepository interface {
	// Create は紐付けを作成し、採番されたIDをconnに設定する。
	// (provider_id, provider_user_id)が重複する場合はmodel.ErrConnectionExistsを返す。
	Create(ctx context.Context, conn *model.Connection) error

	// FindByProviderUserID はprovider_idとprovider_user_idで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderUserID(ctx context.Context, providerID, providerUserID string) (*model.Connection, error)

	// FindPrimary はユーザーの指定プロバイダーに対する紐付けのうちrankが最小のものを返す。
	// 見つからない場合はnilを返す。
	FindPrimary(ctx context.Context, userID int64, providerID string) (*model.Connection, error)

	// CountByUserAndProvider はユーザーの指定プロバイダーに対する紐付け数を返す。
	CountByUserAndProvider(ctx context.Context, userID int64, providerID string) (int, error)

	// UpdateToken はトークン更新後の値を保存する。
	// 紐付けが存在しない場合はmodel.ErrConnectionNotFoundを返す。
	UpdateToken(ctx context.Context, id int64, token model.OAuthResponse) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
