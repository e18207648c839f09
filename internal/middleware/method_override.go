package middleware

import (
	"net/http"
	"strings"
)

// methodOverrideField はHTMLフォームから送るメソッド上書き用のフィールド名。
const methodOverrideField = "_method"

// NewMethodOverrideMiddleware はPOSTリクエストの_method（フォームまたはクエリ）で
// HTTPメソッドを上書きするミドルウェアを返す。上書きできるのはPUT、PATCH、DELETEのみ。
func NewMethodOverrideMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				override := r.URL.Query().Get(methodOverrideField)
				if override == "" {
					override = r.PostFormValue(methodOverrideField)
				}
				switch m := strings.ToUpper(override); m {
				case http.MethodPut, http.MethodPatch, http.MethodDelete:
					r.Method = m
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
