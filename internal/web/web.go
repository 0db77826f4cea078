// Package web holds the embedded page templates and static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templates embed.FS

//go:embed static
var static embed.FS

// Static is the asset tree served under /static.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

var funcs = template.FuncMap{
	"date":      func(t time.Time) string { return t.Format("2 Jan 2006") },
	"datetime":  func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	"ymd":       func(t time.Time) string { return t.Format("2006-01-02") },
	"inputTime": func(t time.Time) string { return t.Format("2006-01-02T15:04") },
	"title":     func(s string) string { return cases.Title(language.English).String(s) },
	"pct":       func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
	"hasPrefix": strings.HasPrefix,
	"one":       func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
	"has": func(list []int64, id int64) bool {
		for _, v := range list {
			if v == id {
				return true
			}
		}
		return false
	},
	// field reads key from a string-keyed map, empty when absent
	"field": func(m any, key string) any {
		v := reflect.ValueOf(m)
		if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
			return ""
		}
		x := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
		if !x.IsValid() {
			return ""
		}
		return x.Interface()
	},
	"humanize": func(s string) string {
		return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
	},
}

// Renderer executes one page template inside the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	names, err := fs.Glob(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t, err := template.New(base).Funcs(funcs).ParseFS(templates, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", base, err)
		}
		r.pages[base] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
