// Package auth はローカルアカウントの作成、資格情報の検証、ログインセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int // 通常セッションの有効期間（秒）
	RememberMaxAge int // remember指定セッションの有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// CreateUser はパスワードをハッシュ化してユーザーを作成する。
// メールアドレスが登録済みの場合はmodel.ErrEmailTakenを返す。
func (s *Service) CreateUser(ctx context.Context, email, password string, active bool) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:    strings.TrimSpace(email),
		Password: hash,
		Active:   active,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return nil, model.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.Int64("user_id", user.ID),
		slog.Bool("active", user.Active),
	)
	return user, nil
}

// EmailExists はメールアドレスが登録済みかどうかを返す。
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return false, fmt.Errorf("failed to look up email: %w", err)
	}
	return user != nil, nil
}

// Authenticate はメールアドレスとパスワードを検証し、一致したユーザーを返す。
// 不一致の場合はmodel.ErrInvalidCredentialsを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.Password, password) {
		return nil, model.ErrInvalidCredentials
	}
	return user, nil
}

// LoginUser はユーザーのログインセッションを発行する。
// 無効化されたユーザーにはセッションを発行せずmodel.ErrInactiveUserを返す。
// その際、無効化前に発行済みのセッションも破棄する。
func (s *Service) LoginUser(ctx context.Context, user *model.User, remember bool) (*model.Session, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}
	if !user.Active {
		s.revokeSessions(ctx, user.ID)
		return nil, model.ErrInactiveUser
	}

	session, err := s.createSession(ctx, user.ID, remember)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.Bool("remember", remember),
	)
	return session, nil
}

// LoginUserID はユーザーIDを指定してログインセッションを発行する。
// ソーシャルログインで紐付け済みユーザーを特定した場合に使用する。
func (s *Service) LoginUserID(ctx context.Context, userID int64, remember bool) (*model.Session, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	return s.LoginUser(ctx, user, remember)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが存在しないか期限切れの場合、またはユーザーが無効化されている場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.Active {
		return nil, nil
	}

	return user, nil
}

// revokeSessions はユーザーの全セッションを削除する。失敗はログに残すのみ。
func (s *Service) revokeSessions(ctx context.Context, userID int64) {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		slog.Error("failed to revoke sessions",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Info("sessions revoked for inactive user", slog.Int64("user_id", userID))
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64, remember bool) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	maxAge := s.config.SessionMaxAge
	if remember {
		maxAge = s.config.RememberMaxAge
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Remember:  remember,
		ExpiresAt: now.Add(time.Duration(maxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
