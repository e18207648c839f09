// Package user は管理者向けのユーザー一覧を提供する。
package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/socialhub/internal/model"
)

// Lister は全ユーザーをロール付きで取得するインターフェース。
type Lister interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

// Entry は一覧の1行分。
type Entry struct {
	ID        int64
	Email     string
	Active    bool
	Roles     []string
	CreatedAt string
}

// RoleList はロール名をカンマ区切りで返す。
func (e Entry) RoleList() string {
	return strings.Join(e.Roles, ", ")
}

// Listing は管理画面に表示するユーザー一覧。
type Listing struct {
	Users []Entry
	Count int
}

// Service はユーザー管理のサービス層。
type Service struct {
	users Lister
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users Lister) *Service {
	return &Service{users: users}
}

// ListUsers は全ユーザーをID順に返す。ユーザーがいない場合も空の一覧を返す。
func (s *Service) ListUsers(ctx context.Context) (*Listing, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		roles := make([]string, 0, len(u.Roles))
		for _, r := range u.Roles {
			roles = append(roles, r.Name)
		}
		entries = append(entries, Entry{
			ID:        u.ID,
			Email:     u.Email,
			Active:    u.Active,
			Roles:     roles,
			CreatedAt: u.CreatedAt.UTC().Format("2006-01-02 15:04"),
		})
	}

	return &Listing{Users: entries, Count: len(entries)}, nil
}
