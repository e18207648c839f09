package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialhub/internal/middleware"
	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/session"
	"github.com/hitoshi/socialhub/internal/social"
)

// BeginLogin はソーシャルログインのOAuthフローを開始する。
// POST /login/{provider_id}
func (h *Handler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	h.beginAuth(w, r, social.PurposeLogin)
}

// LoginCallback はソーシャルログインのOAuthコールバックを処理する。
// 紐付け済みのアカウントであればログインし、未解決であれば登録画面へ誘導する。
// GET /login/{provider_id}/callback
func (h *Handler) LoginCallback(w http.ResponseWriter, r *http.Request) {
	providerID, name, resp, ok := h.completeAuth(w, r, social.PurposeLogin)
	if !ok {
		return
	}

	visitorID := middleware.VisitorIDFromContext(r.Context())
	outcome, err := h.registration.CompleteSocialLogin(r.Context(), visitorID, providerID, *resp)
	if errors.Is(err, model.ErrInactiveUser) {
		h.flash(r, "error", "Account is not active.")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err != nil {
		slog.Error("social login failed",
			slog.String("provider", providerID),
			slog.String("error", err.Error()),
		)
		h.renderError(w, r, http.StatusBadGateway, model.NewOAuthFailedError(name))
		return
	}

	if outcome.Required != nil {
		http.Redirect(w, r, outcome.Required.RedirectURL(), http.StatusFound)
		return
	}

	middleware.SetSessionCookie(w, h.cookie, outcome.Session)
	h.flash(r, "success", "Logged in with "+name+".")
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// BeginConnect はログイン中のユーザーにプロバイダーを紐付けるOAuthフローを開始する。
// POST /connect/{provider_id}
func (h *Handler) BeginConnect(w http.ResponseWriter, r *http.Request) {
	h.beginAuth(w, r, social.PurposeConnect)
}

// ConnectCallback は紐付けのOAuthコールバックを処理する。
// GET /connect/{provider_id}/callback
func (h *Handler) ConnectCallback(w http.ResponseWriter, r *http.Request) {
	providerID, name, resp, ok := h.completeAuth(w, r, social.PurposeConnect)
	if !ok {
		return
	}

	user := middleware.UserFromContext(r.Context())
	_, err := h.social.Connect(r.Context(), providerID, *resp, user.ID)
	switch {
	case errors.Is(err, model.ErrConnectionExists):
		h.flash(r, "error", model.NewConnectionExistsError(name).Message)
	case err != nil:
		slog.Error("failed to connect provider",
			slog.Int64("user_id", user.ID),
			slog.String("provider", providerID),
			slog.String("error", err.Error()),
		)
		h.flash(r, "error", "Could not connect your "+name+" account.")
	default:
		h.metrics.RecordConnectionCreated(providerID)
		h.flash(r, "success", "Connection to "+name+" established.")
	}
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// beginAuth はstateとPKCE検証子をビジターセッションに保存し、プロバイダーの認可画面へリダイレクトする。
func (h *Handler) beginAuth(w http.ResponseWriter, r *http.Request, purpose social.OAuthPurpose) {
	providerID := chi.URLParam(r, "provider_id")
	if _, ok := h.social.DisplayName(providerID); !ok {
		h.renderError(w, r, http.StatusNotFound, model.NewUnknownProviderError(providerID))
		return
	}

	state, err := generateState()
	if err != nil {
		h.internalError(w, r, "failed to generate oauth state", err)
		return
	}

	req, err := h.social.BeginAuth(providerID, purpose, state)
	if err != nil {
		h.internalError(w, r, "failed to begin oauth", err)
		return
	}

	visitorID := middleware.VisitorIDFromContext(r.Context())
	err = h.visitors.SaveOAuthState(r.Context(), visitorID, providerID, session.OAuthState{
		State:    req.State,
		Verifier: req.Verifier,
		Purpose:  string(purpose),
	})
	if err != nil {
		h.internalError(w, r, "failed to save oauth state", err)
		return
	}

	http.Redirect(w, r, req.URL, http.StatusFound)
}

// completeAuth はコールバックのstateを検証し、認可コードをトークンに交換する。
// 失敗した場合は応答を書き込み、okにfalseを返す。
func (h *Handler) completeAuth(w http.ResponseWriter, r *http.Request, purpose social.OAuthPurpose) (providerID, name string, resp *model.OAuthResponse, ok bool) {
	providerID = chi.URLParam(r, "provider_id")
	name, known := h.social.DisplayName(providerID)
	if !known {
		h.renderError(w, r, http.StatusNotFound, model.NewUnknownProviderError(providerID))
		return "", "", nil, false
	}

	// 1. stateの検証（保存した値は一度きりで消費する）
	visitorID := middleware.VisitorIDFromContext(r.Context())
	saved, err := h.visitors.TakeOAuthState(r.Context(), visitorID, providerID)
	if err != nil {
		h.internalError(w, r, "failed to read oauth state", err)
		return "", "", nil, false
	}
	query := r.URL.Query()
	if saved == nil || saved.Purpose != string(purpose) || saved.State != query.Get("state") {
		slog.Warn("oauth state mismatch",
			slog.String("provider", providerID),
			slog.String("purpose", string(purpose)),
		)
		h.renderError(w, r, http.StatusBadRequest, model.NewOAuthStateMismatchError())
		return "", "", nil, false
	}

	// 2. ユーザーが認可を拒否した場合
	if query.Get("error") != "" {
		h.flash(r, "info", "Sign-in with "+name+" was cancelled.")
		target := "/login"
		if purpose == social.PurposeConnect {
			target = "/profile"
		}
		http.Redirect(w, r, target, http.StatusFound)
		return "", "", nil, false
	}

	code := query.Get("code")
	if code == "" {
		h.renderError(w, r, http.StatusBadRequest, model.NewOAuthFailedError(name))
		return "", "", nil, false
	}

	// 3. トークン交換
	resp, err = h.social.CompleteAuth(r.Context(), providerID, purpose, code, saved.Verifier)
	if err != nil {
		slog.Error("oauth exchange failed",
			slog.String("provider", providerID),
			slog.String("error", err.Error()),
		)
		h.renderError(w, r, http.StatusBadGateway, model.NewOAuthFailedError(name))
		return "", "", nil, false
	}

	return providerID, name, resp, true
}
