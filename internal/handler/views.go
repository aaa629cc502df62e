package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/memberboard/internal/board"
	"github.com/hitoshi/memberboard/internal/middleware"
	"github.com/hitoshi/memberboard/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ページ名。templates/<name>.html に対応する。
const (
	pageBoard         = "bbs"
	pageLoginRequired = "login_required"
	pageError         = "error"
)

// pageData はテンプレートに渡す値。
type pageData struct {
	Title            string
	Session          *model.Session
	CSRFToken        string
	RequestID        string
	Posts            []model.Post
	MaxMessageLength int
	Notice           string
	Error            *model.APIError
}

// Views はHTMLテンプレートの描画を行う。
type Views struct {
	pages map[string]*template.Template
}

// NewViews は埋め込みテンプレートを読み込む。
func NewViews() (*Views, error) {
	funcs := template.FuncMap{
		"formatTime": formatTime,
	}

	v := &Views{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageBoard, pageLoginRequired, pageError} {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templatesFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		v.pages[name] = tmpl
	}
	return v, nil
}

// Render はページを描画する。描画に失敗した場合は500を返す。
// バッファに描画してから書き込むため、途中まで書かれたHTMLは返さない。
func (v *Views) Render(w http.ResponseWriter, status int, page string, data pageData) {
	tmpl, ok := v.pages[page]
	if !ok {
		slog.Error("unknown page", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// RenderError はAPIErrorをエラーページとして描画する。
func (v *Views) RenderError(w http.ResponseWriter, r *http.Request, title string, apiErr *model.APIError) {
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	v.Render(w, status, pageError, pageData{
		Title:     title,
		RequestID: requestID(r),
		Error:     apiErr,
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(board.TimestampLayout)
}

// requestID はリクエストに割り当てられたIDを返す。ログとエラーページで共通に使う。
func requestID(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}
