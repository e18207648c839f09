package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialhub/internal/middleware"
	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/web"
)

// Profile はログイン中のユーザーと、プロバイダーごとの紐付けを表示する。
// GET /profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	connections, err := h.social.ListConnections(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, r, "failed to list connections", err)
		return
	}

	h.render(w, r, http.StatusOK, web.PageProfile, web.ProfilePage{Connections: connections})
}

// PostStatus は紐付けたプロバイダーにステータスを投稿する。
// メッセージが空の場合はプロバイダーを呼び出さずにプロフィールへ戻る。
// POST /profile/{provider_id}/post
func (h *Handler) PostStatus(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.PostFormValue("message"))
	if message == "" {
		http.Redirect(w, r, "/profile", http.StatusFound)
		return
	}

	providerID := chi.URLParam(r, "provider_id")
	name, ok := h.social.DisplayName(providerID)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, model.NewUnknownProviderError(providerID))
		return
	}

	user := middleware.UserFromContext(r.Context())
	err := h.social.PostStatus(r.Context(), user.ID, providerID, message)
	switch {
	case errors.Is(err, model.ErrConnectionNotFound):
		h.flash(r, "error", "No "+name+" account is connected.")
	case err != nil:
		slog.Error("failed to post status",
			slog.Int64("user_id", user.ID),
			slog.String("provider", providerID),
			slog.String("error", err.Error()),
		)
		h.metrics.RecordStatusPost(providerID, false)
		h.flash(r, "error", "Could not post to "+name+".")
	default:
		h.metrics.RecordStatusPost(providerID, true)
		h.flash(r, "success", "Message posted to "+name+": "+message)
	}
	http.Redirect(w, r, "/profile", http.StatusFound)
}
