package cli

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/mchmarny/triage/pkg/risk"
	"github.com/mchmarny/triage/pkg/table"
)

func homeViewHandler(tmpl *template.Template, cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layers, err := overrideLayers(cfg.DB, cfg.Config, "", "", nil)
		if err != nil {
			slog.Error("failed to resolve weights", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		idx, err := buildIndex(layers)
		if err != nil {
			slog.Error("invalid configured weights", "error", err)
			http.Error(w, "invalid configured weights", http.StatusInternalServerError)
			return
		}

		d := map[string]any{
			"version":    version,
			"commit":     commit,
			"build_date": date,
			"err":        r.URL.Query().Get("err"),
			"weights":    indexItems(idx),
			"max_weight": risk.MaxSuggestedWeight,
			"required":   table.RequiredColumns,
		}
		if err := tmpl.ExecuteTemplate(w, "home", d); err != nil {
			slog.Error("template render failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}
