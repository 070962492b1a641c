package server

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/solwallet/service/dashboard"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"short": solana.ShortAddress,
}

// TemplateRenderer holds the parsed dashboard templates.
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer parses the embedded templates.
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: tmpl, logger: logger}, nil
}

// Render executes name into a buffer first so a failing template never sends a partial page.
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := tr.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

type dashboardPage struct {
	State    dashboard.State
	Adapters []wallet.AdapterInfo
}

func handleDashboardPage(renderer *TemplateRenderer, dash Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := dashboardPage{
			State:    dash.State(),
			Adapters: dash.Adapters(),
		}
		if err := renderer.Render(w, "dashboard.html", data); err != nil {
			renderer.logger.ErrorContext(r.Context(), "failed to render dashboard", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
