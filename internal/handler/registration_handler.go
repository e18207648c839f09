package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialhub/internal/middleware"
	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/registration"
	"github.com/hitoshi/socialhub/internal/web"
)

// RegisterPage は登録フォームを表示する。ログイン済みの場合はリダイレクトする。
// social_login_failed=1とプロバイダーIDが指定された場合は、ソーシャルログイン失敗の案内を添える。
// GET /register, GET /register/{provider_id}
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if middleware.UserFromContext(r.Context()) != nil {
		h.redirectAway(w, r)
		return
	}

	providerID := chi.URLParam(r, "provider_id")
	if providerID == "" {
		providerID = r.URL.Query().Get("provider_id")
	}
	h.render(w, r, http.StatusOK, web.PageRegister,
		h.registerPage(providerID, r.URL.Query().Get("social_login_failed") == "1", "", nil))
}

// Register は登録フォームの送信を処理する。
// 保留中のソーシャルログインがあれば新しいアカウントに紐付ける。
// セッションを開始できた場合はプロフィールへ、できなかった場合は確認待ちの案内を表示する。
// POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if middleware.UserFromContext(r.Context()) != nil {
		h.redirectAway(w, r)
		return
	}

	form := registration.RegisterForm{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	visitorID := middleware.VisitorIDFromContext(r.Context())

	result, err := h.registration.Register(r.Context(), visitorID, form)
	if fields, ok := validationFields(err); ok {
		h.render(w, r, http.StatusOK, web.PageRegister, h.registerPage(
			r.PostFormValue("provider_id"),
			r.PostFormValue("social_login_failed") == "1",
			form.Email,
			fields,
		))
		return
	}
	if err != nil {
		h.internalError(w, r, "registration failed", err)
		return
	}

	h.flashLinkResult(r, result)

	if result.Session == nil {
		h.render(w, r, http.StatusOK, web.PageThanks, web.ThanksPage{Email: result.User.Email})
		return
	}

	middleware.SetSessionCookie(w, h.cookie, result.Session)
	h.flash(r, "success", "Account created successfully")
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// registerPage は登録画面の入力を組み立てる。未知のプロバイダーは表示名なしで扱う。
func (h *Handler) registerPage(providerID string, failed bool, email string, errs map[string]string) web.RegisterPage {
	page := web.RegisterPage{
		Email:             email,
		Errors:            errs,
		SocialLoginFailed: failed && providerID != "",
	}
	if page.SocialLoginFailed {
		if name, ok := h.social.DisplayName(providerID); ok {
			page.ProviderID = providerID
			page.ProviderName = name
		} else {
			page.SocialLoginFailed = false
		}
	}
	return page
}

// flashLinkResult は保留中のソーシャルログインの紐付け結果を通知する。
func (h *Handler) flashLinkResult(r *http.Request, result *registration.RegisterResult) {
	if result.LinkedProviderID == "" {
		return
	}
	name, ok := h.social.DisplayName(result.LinkedProviderID)
	if !ok {
		name = result.LinkedProviderID
	}

	switch {
	case result.Connection != nil:
		h.flash(r, "success", "Your "+name+" account is now connected.")
	case errors.Is(result.LinkError, model.ErrConnectionExists):
		h.flash(r, "error", model.NewConnectionExistsError(name).Message)
	case result.LinkError != nil:
		h.flash(r, "error", "Could not connect your "+name+" account.")
	}
}
