package web

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type Templates struct {
	templates *template.Template
}

func NewTemplates() *Templates {
	base := template.New("").Funcs(TemplateFuncs())
	return &Templates{
		templates: template.Must(base.ParseFS(templateFS, "templates/*.html")),
	}
}

func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"clock": func(t time.Time) string {
			return t.Format("15:04:05")
		},
		"ids": func(ids []int) string {
			parts := make([]string, len(ids))
			for i, id := range ids {
				parts[i] = strconv.Itoa(id)
			}
			return strings.Join(parts, ", ")
		},
	}
}

// Render executes a named template
func (t *Templates) Render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.templates.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, "Template rendering error: "+err.Error(), http.StatusInternalServerError)
	}
}
