// Package registration はローカル登録とログイン、および未解決のソーシャルログインの後追い紐付けを扱う。
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/socialhub/internal/metrics"
	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/social"
)

// AuthGateway は登録・ログインに必要な認証機能のインターフェース。
type AuthGateway interface {
	CreateUser(ctx context.Context, email, password string, active bool) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	LoginUser(ctx context.Context, user *model.User, remember bool) (*model.Session, error)
	LoginUserID(ctx context.Context, userID int64, remember bool) (*model.Session, error)
}

// SocialLinker はソーシャル連携の窓口のうち、本フローが使う部分。
type SocialLinker interface {
	ResolveLogin(ctx context.Context, providerID string, resp model.OAuthResponse) (*social.LoginResult, error)
	Connect(ctx context.Context, providerID string, resp model.OAuthResponse, userID int64) (*model.Connection, error)
}

// PendingBuffer は未解決のソーシャルログインを保持するビジターセッション上のバッファ。
type PendingBuffer interface {
	StashPendingLogin(ctx context.Context, visitorID string, pending model.PendingSocialLogin) error
	PopPendingLogin(ctx context.Context, visitorID string) (*model.PendingSocialLogin, error)
}

// SocialLoginRequired はソーシャルログインが既存アカウントに解決できず、
// 登録画面へ誘導する必要があることを示すシグナル。
type SocialLoginRequired struct {
	ProviderID string
}

// RedirectURL は登録画面のURLを返す。
func (s *SocialLoginRequired) RedirectURL() string {
	return "/register/" + url.PathEscape(s.ProviderID) + "?social_login_failed=1"
}

// RegisterResult は登録の結果。
// Sessionがnilの場合はセッションを開始できなかったため、確認待ちの案内を表示する。
type RegisterResult struct {
	User       *model.User
	Session    *model.Session
	Connection *model.Connection
	// LinkError は保留中のソーシャルログインの紐付けに失敗した場合の原因。
	LinkError error
	// LinkedProviderID は紐付けを試みたプロバイダーID。
	LinkedProviderID string
}

// SocialLoginOutcome はソーシャルログインの結果。SessionとRequiredのどちらか一方が設定される。
type SocialLoginOutcome struct {
	Session  *model.Session
	Required *SocialLoginRequired
}

// Config は登録フローの設定。
type Config struct {
	// AutoActivate がfalseの場合、新規ユーザーは無効状態で作成される。
	AutoActivate bool
}

// Service は登録・ログインのフローを提供する。
type Service struct {
	auth     AuthGateway
	linker   SocialLinker
	pending  PendingBuffer
	metrics  metrics.MetricsCollector
	validate *validator.Validate
	config   Config
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(auth AuthGateway, linker SocialLinker, pending PendingBuffer, collector metrics.MetricsCollector, config Config) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		auth:     auth,
		linker:   linker,
		pending:  pending,
		metrics:  collector,
		validate: newValidator(),
		config:   config,
	}
}

// Register はローカルアカウントを作成し、保留中のソーシャルログインがあれば新しいユーザーに紐付けてから
// rememberありのセッションを開始する。
// 入力が不正な場合やメールアドレスが登録済みの場合は*model.ValidationErrorを返す。
func (s *Service) Register(ctx context.Context, visitorID string, form RegisterForm) (*RegisterResult, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := validateForm(s.validate, form); err != nil {
		return nil, err
	}

	exists, err := s.auth.EmailExists(ctx, form.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, emailTakenError(form.Email)
	}

	// 1. ユーザーを作成
	user, err := s.auth.CreateUser(ctx, form.Email, form.Password, s.config.AutoActivate)
	if errors.Is(err, model.ErrEmailTaken) {
		return nil, emailTakenError(form.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	result := &RegisterResult{User: user}

	// 2. 保留中のソーシャルログインを取り出して紐付け（セッション開始より先に行う）
	pending, err := s.pending.PopPendingLogin(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending social login: %w", err)
	}
	if pending != nil {
		result.LinkedProviderID = pending.ProviderID
		conn, err := s.linker.Connect(ctx, pending.ProviderID, pending.OAuthResponse, user.ID)
		if err != nil {
			slog.Warn("failed to link pending social login",
				slog.Int64("user_id", user.ID),
				slog.String("provider", pending.ProviderID),
				slog.String("error", err.Error()),
			)
			result.LinkError = err
		} else {
			result.Connection = conn
			s.metrics.RecordConnectionCreated(pending.ProviderID)
		}
	}
	s.metrics.RecordRegistration(result.Connection != nil)

	// 3. rememberありでセッションを開始。失敗しても登録自体は成功として扱う
	session, err := s.auth.LoginUser(ctx, user, true)
	if err != nil {
		slog.Info("registration completed without session",
			slog.Int64("user_id", user.ID),
			slog.String("reason", err.Error()),
		)
		return result, nil
	}
	result.Session = session

	slog.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.Bool("linked", result.Connection != nil),
	)
	return result, nil
}

// Login はメールアドレスとパスワードでログインする。
// 入力不正、資格情報の不一致、無効化されたアカウントは*model.ValidationErrorで返す。
func (s *Service) Login(ctx context.Context, form LoginForm) (*model.Session, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := validateForm(s.validate, form); err != nil {
		return nil, err
	}

	user, err := s.auth.Authenticate(ctx, form.Email, form.Password)
	if errors.Is(err, model.ErrInvalidCredentials) {
		s.metrics.RecordLogin("password", false)
		return nil, model.NewValidationError("email", "Invalid email or password.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	session, err := s.auth.LoginUser(ctx, user, form.Remember)
	if errors.Is(err, model.ErrInactiveUser) {
		s.metrics.RecordLogin("password", false)
		return nil, model.NewValidationError("email", "Account is not active.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.metrics.RecordLogin("password", true)
	return session, nil
}

// SocialLoginFailed は解決できなかったソーシャルログインをバッファに退避し、
// 登録画面へ誘導するシグナルを返す。既存の保留は上書きする。
func (s *Service) SocialLoginFailed(ctx context.Context, visitorID, providerID string, resp model.OAuthResponse) (*SocialLoginRequired, error) {
	pending := model.PendingSocialLogin{ProviderID: providerID, OAuthResponse: resp}
	if err := s.pending.StashPendingLogin(ctx, visitorID, pending); err != nil {
		return nil, fmt.Errorf("failed to stash pending social login: %w", err)
	}

	s.metrics.RecordSocialLoginUnresolved(providerID)
	slog.Info("social login failed",
		slog.String("provider", providerID),
	)
	return &SocialLoginRequired{ProviderID: providerID}, nil
}

// CompleteSocialLogin はOAuth応答を既存アカウントと照合する。
// 紐付け済みであればその所有者のセッションを開始し、未解決であればSocialLoginFailedに委ねる。
func (s *Service) CompleteSocialLogin(ctx context.Context, visitorID, providerID string, resp model.OAuthResponse) (*SocialLoginOutcome, error) {
	result, err := s.linker.ResolveLogin(ctx, providerID, resp)
	if err != nil {
		s.metrics.RecordLogin(providerID, false)
		return nil, err
	}

	if result.Connection == nil {
		required, err := s.SocialLoginFailed(ctx, visitorID, providerID, result.Response)
		if err != nil {
			return nil, err
		}
		return &SocialLoginOutcome{Required: required}, nil
	}

	session, err := s.auth.LoginUserID(ctx, result.Connection.UserID, true)
	if err != nil {
		s.metrics.RecordLogin(providerID, false)
		return nil, err
	}

	s.metrics.RecordLogin(providerID, true)
	return &SocialLoginOutcome{Session: session}, nil
}

func emailTakenError(email string) *model.ValidationError {
	return model.NewValidationError("email", email+" is already associated with an account.")
}
