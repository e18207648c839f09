// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/socialhub/internal/metrics"
	"github.com/hitoshi/socialhub/internal/middleware"
	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/registration"
	"github.com/hitoshi/socialhub/internal/session"
	"github.com/hitoshi/socialhub/internal/social"
	"github.com/hitoshi/socialhub/internal/user"
	"github.com/hitoshi/socialhub/internal/web"
)

// SessionService はログインセッションの破棄に必要なインターフェース。
type SessionService interface {
	Logout(ctx context.Context, sessionID string) error
}

// RegistrationService は登録・ログインのフローのインターフェース。
type RegistrationService interface {
	Register(ctx context.Context, visitorID string, form registration.RegisterForm) (*registration.RegisterResult, error)
	Login(ctx context.Context, form registration.LoginForm) (*model.Session, error)
	CompleteSocialLogin(ctx context.Context, visitorID, providerID string, resp model.OAuthResponse) (*registration.SocialLoginOutcome, error)
}

// SocialService はソーシャル連携のうちハンドラーが使う部分のインターフェース。
type SocialService interface {
	ProviderOptions() []web.ProviderOption
	DisplayName(providerID string) (string, bool)
	BeginAuth(providerID string, purpose social.OAuthPurpose, state string) (*social.AuthRequest, error)
	CompleteAuth(ctx context.Context, providerID string, purpose social.OAuthPurpose, code, verifier string) (*model.OAuthResponse, error)
	Connect(ctx context.Context, providerID string, resp model.OAuthResponse, userID int64) (*model.Connection, error)
	ListConnections(ctx context.Context, userID int64) ([]social.ProviderConnection, error)
	PostStatus(ctx context.Context, userID int64, providerID, message string) error
}

// VisitorSession はビジターセッション上のフラッシュとOAuth stateのインターフェース。
type VisitorSession interface {
	AddFlash(ctx context.Context, visitorID string, flash session.Flash) error
	PopFlashes(ctx context.Context, visitorID string) ([]session.Flash, error)
	SaveOAuthState(ctx context.Context, visitorID, providerID string, state session.OAuthState) error
	TakeOAuthState(ctx context.Context, visitorID, providerID string) (*session.OAuthState, error)
}

// AdminLister は管理画面のユーザー一覧を返すインターフェース。
type AdminLister interface {
	ListUsers(ctx context.Context) (*user.Listing, error)
}

// Handler は画面とフォーム送信を処理するHTTPハンドラー。
type Handler struct {
	sessions     SessionService
	registration RegistrationService
	social       SocialService
	visitors     VisitorSession
	admin        AdminLister
	renderer     *web.Renderer
	metrics      metrics.MetricsCollector
	cookie       middleware.CookieConfig
}

// HandlerDeps はHandlerの依存関係。
type HandlerDeps struct {
	Sessions     SessionService
	Registration RegistrationService
	Social       SocialService
	Visitors     VisitorSession
	Admin        AdminLister
	Renderer     *web.Renderer
	Metrics      metrics.MetricsCollector
	Cookie       middleware.CookieConfig
}

// NewHandler はHandlerを生成する。
func NewHandler(deps HandlerDeps) *Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Handler{
		sessions:     deps.Sessions,
		registration: deps.Registration,
		social:       deps.Social,
		visitors:     deps.Visitors,
		admin:        deps.Admin,
		renderer:     deps.Renderer,
		metrics:      collector,
		cookie:       deps.Cookie,
	}
}

// pageData は全ページ共通の値を組み立てる。表示したフラッシュはここで消費される。
func (h *Handler) pageData(r *http.Request, data any) web.PageData {
	ctx := r.Context()
	flashes, err := h.visitors.PopFlashes(ctx, middleware.VisitorIDFromContext(ctx))
	if err != nil {
		slog.Warn("failed to read flashes", slog.String("error", err.Error()))
	}
	return web.PageData{
		User:      middleware.UserFromContext(ctx),
		CSRFToken: middleware.CSRFTokenFromContext(ctx),
		Flashes:   flashes,
		Data:      data,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := h.renderer.Render(w, status, page, h.pageData(r, data)); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// renderError はエラーページを描画する。
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, appErr *model.AppError) {
	h.render(w, r, status, web.PageError, web.ErrorPage{
		Status:  status,
		Message: appErr.Message,
		Action:  appErr.Action,
	})
}

// internalError は詳細をログに残し、汎用のエラーページを返す。
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	h.renderError(w, r, http.StatusInternalServerError, model.NewInternalError())
}

// ErrorPage はミドルウェアから使う500エラーページのハンドラーを返す。
func (h *Handler) ErrorPage(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusInternalServerError, model.NewInternalError())
}

// NotFound は404エラーページを描画する。
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, &model.AppError{
		Code:     "NOT_FOUND",
		Message:  "The page you are looking for does not exist.",
		Category: "system",
	})
}

// CSRFFailed はCSRF検証に失敗したリクエストにエラーページを返す。
func (h *Handler) CSRFFailed(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusForbidden, &model.AppError{
		Code:     "CSRF_FAILED",
		Message:  "The form has expired.",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	})
}

func (h *Handler) flash(r *http.Request, category, message string) {
	ctx := r.Context()
	err := h.visitors.AddFlash(ctx, middleware.VisitorIDFromContext(ctx), session.Flash{Category: category, Message: message})
	if err != nil {
		slog.Warn("failed to store flash", slog.String("error", err.Error()))
	}
}

// redirectAway はログイン済みユーザーを同一ホストのリファラー、なければトップへリダイレクトする。
func (h *Handler) redirectAway(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, safeReferrer(r), http.StatusFound)
}

// safeReferrer はリファラーが同一ホストの別ページであればそのパスを、それ以外は"/"を返す。
func safeReferrer(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host == "" || ref.Host != r.Host {
		return "/"
	}
	if ref.Path == "" || ref.Path == r.URL.Path || strings.HasPrefix(ref.Path, "//") {
		return "/"
	}
	target := ref.EscapedPath()
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	return target
}

// validationFields はエラーが入力検証エラーであればフィールド別のメッセージを返す。
func validationFields(err error) (map[string]string, bool) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields, true
	}
	return nil, false
}

// generateState はOAuthのstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
