// Package web はサーバーサイドで描画するHTMLテンプレートを提供する。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialhub/internal/model"
	"github.com/hitoshi/socialhub/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ページ名
const (
	PageIndex    = "index"
	PageLogin    = "login"
	PageRegister = "register"
	PageThanks   = "thanks"
	PageProfile  = "profile"
	PageAdmin    = "admin"
	PageError    = "error"
)

var pages = []string{PageIndex, PageLogin, PageRegister, PageThanks, PageProfile, PageAdmin, PageError}

// PageData は全ページ共通のテンプレート入力。
// Dataにはページ固有の値を渡す。
type PageData struct {
	User              *model.User
	CSRFToken         string
	Flashes           []session.Flash
	GoogleAnalyticsID string
	Data              any
}

// Renderer は埋め込みテンプレートからページを描画する。
type Renderer struct {
	pages             map[string]*template.Template
	googleAnalyticsID string
}

// NewRenderer はレイアウトと各ページのテンプレートを解析してRendererを生成する。
func NewRenderer(googleAnalyticsID string) (*Renderer, error) {
	r := &Renderer{
		pages:             make(map[string]*template.Template, len(pages)),
		googleAnalyticsID: googleAnalyticsID,
	}
	for _, name := range pages {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render はページを描画してステータスコードとともに書き込む。
// 描画に失敗した場合は何も書き込まずにエラーを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data PageData) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page: %s", name)
	}
	data.GoogleAnalyticsID = r.googleAnalyticsID

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write response", slog.String("page", name), slog.String("error", err.Error()))
	}
	return nil
}
