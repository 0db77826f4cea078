package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	flashCookie = "flash"
	flashesKey  = "flashes"
	flashedKey  = "flashes_read"
)

const (
	FlashSuccess = "success"
	FlashInfo    = "info"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

type Flash struct {
	Kind    string `json:"k"`
	Message string `json:"m"`
}

// pending holds the unread messages: those carried in the cookie plus any
// queued during this request.
func pending(c echo.Context) []Flash {
	if list, ok := c.Get(flashesKey).([]Flash); ok {
		return list
	}
	var list []Flash
	if read, _ := c.Get(flashedKey).(bool); !read {
		if ck, err := c.Cookie(flashCookie); err == nil && ck.Value != "" {
			if b, err := base64.RawURLEncoding.DecodeString(ck.Value); err == nil {
				_ = json.Unmarshal(b, &list)
			}
		}
	}
	return list
}

// SetFlash queues a message for the next rendered page.
func SetFlash(c echo.Context, kind, msg string) {
	list := append(pending(c), Flash{Kind: kind, Message: msg})
	c.Set(flashesKey, list)

	b, err := json.Marshal(list)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(b),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Flashes returns the unread messages and clears them.
func Flashes(c echo.Context) []Flash {
	list := pending(c)
	c.Set(flashesKey, []Flash(nil))
	c.Set(flashedKey, true)
	c.SetCookie(&http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	return list
}
