package web

import (
	"bytes"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandbridge/internal/calendar"
	"grandbridge/internal/model"
)

func render(t *testing.T, name string, data map[string]any) string {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, name, data, nil))
	return buf.String()
}

func TestRendererParsesEveryPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	names, err := fs.Glob(templates, "templates/*.html")
	require.NoError(t, err)
	assert.Len(t, r.pages, len(names)-1)
	assert.Contains(t, r.pages, "calendar.html")
	assert.NotContains(t, r.pages, "layout.html")
}

func TestRenderUnknownPage(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	err = r.Render(&bytes.Buffer{}, "nope.html", nil, nil)
	assert.Error(t, err)
}

func TestRenderLoggedOutHome(t *testing.T) {
	out := render(t, "home.html", map[string]any{})
	assert.Contains(t, out, "Create an account")
	assert.Contains(t, out, `href="/login"`)
	assert.NotContains(t, out, "Log out")
}

func TestRenderFormErrorsEscaped(t *testing.T) {
	out := render(t, "register.html", map[string]any{
		"Form":   map[string]any{"username": "<b>x</b>"},
		"Errors": map[string]string{"email": "Invalid email address."},
	})
	assert.Contains(t, out, "&lt;b&gt;x&lt;/b&gt;")
	assert.NotContains(t, out, "<b>x</b>")
	assert.Contains(t, out, `<span class="error">Invalid email address.</span>`)
}

func TestRenderCalendar(t *testing.T) {
	today := time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)
	items := []calendar.Item{{
		Source: calendar.SourceInternal,
		ID:     "4",
		Title:  "Swimming lesson",
		Start:  time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC),
		End:    time.Date(2025, time.March, 14, 11, 0, 0, 0, time.UTC),
	}}
	view := calendar.Build(2025, time.March, today, calendar.SourceAll, items)
	py, pm := view.Prev()
	ny, nm := view.Next()

	out := render(t, "calendar.html", map[string]any{
		"User":      &model.User{ID: 1, Username: "ann", Coins: 4},
		"Month":     view,
		"PrevYear":  py,
		"PrevMonth": pm,
		"NextYear":  ny,
		"NextMonth": nm,
	})
	assert.Contains(t, out, "March 2025")
	assert.Contains(t, out, `<a href="/event/4">Swimming lesson</a>`)
	assert.Contains(t, out, "4 coins")
	assert.NotContains(t, out, "google_login")
}

func TestField(t *testing.T) {
	f := funcs["field"].(func(any, string) any)
	assert.Equal(t, "v", f(map[string]string{"k": "v"}, "k"))
	assert.Equal(t, "", f(map[string]string{}, "k"))
	assert.Equal(t, "", f(nil, "k"))
	assert.Equal(t, 3, f(map[string]any{"n": 3}, "n"))
}

func TestStatic(t *testing.T) {
	b, err := fs.ReadFile(Static(), "app.css")
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}
