package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/socialhub/internal/web"
)

// Admin は全ユーザーの一覧を表示する。Basic認証の内側で使用する。
// GET /admin
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	listing, err := h.admin.ListUsers(r.Context())
	if err != nil {
		h.internalError(w, r, "failed to list users", err)
		return
	}
	h.render(w, r, http.StatusOK, web.PageAdmin, listing)
}

// Pinger はデータベースの疎通確認のインターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler はデータベースへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unavailable\n"))
			return
		}
		w.Write([]byte("ok\n"))
	}
}
