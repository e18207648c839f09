// Package session はブラウザ（ビジター）単位の短期データを保持するキーバリューストアを提供する。
// 未解決のソーシャルログイン、フラッシュメッセージ、OAuthのstateをここに置く。
package session

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable はバックエンドのストアに到達できないことを示す。
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store はビジターセッション用のキーバリューストアのインターフェース。
// すべての操作は同じキーへの並行アクセスに対して原子的でなければならない。
type Store interface {
	// Set はキーに値をttl付きで保存する。既存の値は上書きする。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take はキーの値を取り出し、同時に削除する。同じ値を二度返すことはない。
	Take(ctx context.Context, key string) ([]byte, bool, error)
	// Append はキーのリスト末尾に値を追加し、有効期限をttlに延長する。
	Append(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// TakeAll はキーのリストをすべて取り出し、同時に削除する。
	TakeAll(ctx context.Context, key string) ([][]byte, error)
}
