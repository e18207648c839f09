package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialhub/internal/middleware"
	"github.com/hitoshi/socialhub/internal/registration"
	"github.com/hitoshi/socialhub/internal/web"
)

// Index はトップページを表示する。
// GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, web.PageIndex, nil)
}

// LoginPage はログインフォームを表示する。ログイン済みの場合はリダイレクトする。
// GET /login
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if middleware.UserFromContext(r.Context()) != nil {
		h.redirectAway(w, r)
		return
	}
	h.render(w, r, http.StatusOK, web.PageLogin, web.LoginPage{
		Providers: h.social.ProviderOptions(),
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if middleware.UserFromContext(r.Context()) != nil {
		h.redirectAway(w, r)
		return
	}

	form := registration.LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Remember: isChecked(r.PostFormValue("remember")),
	}

	sess, err := h.registration.Login(r.Context(), form)
	if fields, ok := validationFields(err); ok {
		h.render(w, r, http.StatusOK, web.PageLogin, web.LoginPage{
			Email:     form.Email,
			Remember:  form.Remember,
			Errors:    fields,
			Providers: h.social.ProviderOptions(),
		})
		return
	}
	if err != nil {
		h.internalError(w, r, "login failed", err)
		return
	}

	middleware.SetSessionCookie(w, h.cookie, sess)
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// Logout はログインセッションを破棄する。
// POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		// 失敗してもCookieはクリアする
		if err := h.sessions.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.cookie)
	h.flash(r, "info", "You have been logged out.")
	http.Redirect(w, r, "/", http.StatusFound)
}

func isChecked(v string) bool {
	switch v {
	case "1", "true", "on", "yes", "y":
		return true
	}
	return false
}
