package handler

import (
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

const (
	inputTimeLayout = "2006-01-02T15:04"
	dateLayout      = "2006-01-02"
)

// form reads posted values and collects per-field messages.
type form struct {
	c      echo.Context
	Errors map[string]string
}

func newForm(c echo.Context) *form {
	return &form{c: c, Errors: map[string]string{}}
}

func (f *form) get(name string) string {
	return strings.TrimSpace(f.c.FormValue(name))
}

func (f *form) fail(name, msg string) {
	if _, ok := f.Errors[name]; !ok {
		f.Errors[name] = msg
	}
}

func (f *form) valid() bool { return len(f.Errors) == 0 }

func (f *form) required(name string) string {
	v := f.get(name)
	if v == "" {
		f.fail(name, "This field is required.")
	}
	return v
}

// length checks a required field's rune count.
func (f *form) length(name string, min, max int) string {
	v := f.required(name)
	if v == "" {
		return v
	}
	if n := utf8.RuneCountInString(v); n < min || n > max {
		f.fail(name, fmt.Sprintf("Field must be between %d and %d characters long.", min, max))
	}
	return v
}

func (f *form) maxLength(name string, max int) string {
	v := f.get(name)
	if utf8.RuneCountInString(v) > max {
		f.fail(name, fmt.Sprintf("Field cannot be longer than %d characters.", max))
	}
	return v
}

func (f *form) email(name string) string {
	v := f.required(name)
	if v != "" && !validEmail(v) {
		f.fail(name, "Invalid email address.")
	}
	return v
}

// rating reads an optional 1..5 value.
func (f *form) rating(name string) *int {
	v := f.get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 5 {
		f.fail(name, "Choose a value between 1 and 5.")
		return nil
	}
	return &n
}

func (f *form) checked(name string) bool {
	switch strings.ToLower(f.get(name)) {
	case "y", "yes", "on", "true", "1":
		return true
	}
	return false
}

// optionalID parses a positive integer; blank means none.
func (f *form) optionalID(name string) *int64 {
	v := f.get(name)
	if v == "" {
		return nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		f.fail(name, "Enter a whole number.")
		return nil
	}
	return &id
}

func (f *form) localTime(name string, loc *time.Location) time.Time {
	v := f.required(name)
	if v == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(inputTimeLayout, v, loc)
	if err != nil {
		f.fail(name, "Not a valid date and time.")
	}
	return t
}

func (f *form) date(name string, loc *time.Location) time.Time {
	v := f.required(name)
	if v == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		f.fail(name, "Not a valid date value.")
	}
	return t
}

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// safeNext only follows redirects to paths on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}
