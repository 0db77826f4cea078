package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/auth"
	"grandbridge/internal/calendar"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

const stateCookie = "oauth_state"

func (h *Handler) googleSession(ctx context.Context, u *model.User) (*calendar.Session, error) {
	if h.google == nil {
		return nil, calendar.ErrNotConnected
	}
	tok, err := calendar.DecodeToken(u.GoogleToken)
	if err != nil {
		return nil, err
	}
	return h.google.Session(ctx, u.ID, tok)
}

// saveGoogleToken persists a token the oauth2 client refreshed during the request.
func (h *Handler) saveGoogleToken(ctx context.Context, u *model.User, sess *calendar.Session) {
	tok, err := sess.Token()
	if err != nil {
		return
	}
	old, err := calendar.DecodeToken(u.GoogleToken)
	if err == nil && old.AccessToken == tok.AccessToken {
		return
	}
	raw, err := calendar.EncodeToken(tok)
	if err != nil {
		return
	}
	if err := h.store.SetGoogleToken(ctx, u.ID, raw); err != nil {
		h.log.Warn("save google token", zap.Int64("user_id", u.ID), zap.Error(err))
	}
}

// requireGoogle answers with a redirect when the user has no usable Google session.
func (h *Handler) requireGoogle(c echo.Context) (*calendar.Session, error) {
	sess, err := h.googleSession(c.Request().Context(), user(c))
	if err != nil {
		middleware.SetFlash(c, middleware.FlashInfo, "Connect your Google Calendar first.")
		return nil, h.redirect(c, "/calendar")
	}
	return sess, nil
}

func (h *Handler) GoogleLogin(c echo.Context) error {
	if h.google == nil {
		return h.flashRedirect(c, middleware.FlashWarning, "Google Calendar is not configured.", "/calendar")
	}
	state, err := auth.RandomString(16)
	if err != nil {
		return h.fail(c, "oauth state", err)
	}
	c.SetCookie(&http.Cookie{
		Name: stateCookie, Value: state, Path: "/",
		MaxAge: int((10 * time.Minute).Seconds()), HttpOnly: true,
		Secure: h.cfg.CookieSecure, SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, h.google.AuthURL(state))
}

func (h *Handler) GoogleCallback(c echo.Context) error {
	if h.google == nil {
		return notFound()
	}
	ck, err := c.Cookie(stateCookie)
	if err != nil || ck.Value == "" || ck.Value != c.QueryParam("state") {
		return echo.NewHTTPError(http.StatusBadRequest, "state mismatch")
	}
	c.SetCookie(&http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})
	if e := c.QueryParam("error"); e != "" {
		return h.flashRedirect(c, middleware.FlashWarning, "Google sign-in was cancelled.", "/calendar")
	}

	ctx := c.Request().Context()
	u := user(c)
	tok, err := h.google.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		h.log.Warn("google exchange", zap.Error(err))
		return h.flashRedirect(c, middleware.FlashDanger, "Could not connect to Google Calendar.", "/")
	}
	sub, err := h.google.Subject(ctx, tok)
	if err != nil {
		h.log.Warn("google userinfo", zap.Error(err))
		return h.flashRedirect(c, middleware.FlashDanger, "Could not connect to Google Calendar.", "/")
	}
	raw, err := calendar.EncodeToken(tok)
	if err != nil {
		return h.fail(c, "encode token", err)
	}
	err = h.store.SetGoogleAccount(ctx, u.ID, sub, raw)
	if errors.Is(err, store.ErrDuplicate) {
		return h.flashRedirect(c, middleware.FlashDanger, "This Google account is already linked to another user.", "/calendar")
	}
	if err != nil {
		return h.fail(c, "save google account", err)
	}
	return h.redirect(c, "/calendar")
}

func (h *Handler) GoogleLogout(c echo.Context) error {
	if err := h.store.ClearGoogleAccount(c.Request().Context(), user(c).ID); err != nil {
		return h.fail(c, "clear google account", err)
	}
	return h.flashRedirect(c, middleware.FlashInfo, "Google Calendar disconnected.", "/calendar")
}

func (h *Handler) GoogleEvent(c echo.Context) error {
	sess, err := h.requireGoogle(c)
	if sess == nil {
		return err
	}
	ctx := c.Request().Context()
	it, err := sess.Cached(ctx, c.Param("id"))
	h.saveGoogleToken(ctx, user(c), sess)
	if err != nil {
		h.log.Debug("google event", zap.String("id", c.Param("id")), zap.Error(err))
		return notFound()
	}
	return h.render(c, "google_event.html", M{"Event": it})
}

func (h *Handler) DeleteGoogleEvent(c echo.Context) error {
	sess, err := h.requireGoogle(c)
	if sess == nil {
		return err
	}
	ctx := c.Request().Context()
	err = sess.Delete(ctx, c.Param("id"))
	h.saveGoogleToken(ctx, user(c), sess)
	if err != nil {
		return h.flashRedirect(c, middleware.FlashDanger, fmt.Sprintf("Error deleting event: %v", err), "/calendar")
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "Event deleted successfully", "/calendar")
}

func (h *Handler) EditGoogleEvent(c echo.Context) error {
	sess, err := h.requireGoogle(c)
	if sess == nil {
		return err
	}
	ctx := c.Request().Context()
	defer h.saveGoogleToken(ctx, user(c), sess)

	id := c.Param("id")
	it, err := sess.Cached(ctx, id)
	if err != nil {
		return notFound()
	}
	if c.Request().Method == http.MethodGet {
		return h.render(c, "google_event_form.html", M{"Event": it})
	}

	title, location := c.FormValue("title"), c.FormValue("location")
	start, serr := time.ParseInLocation(inputTimeLayout, c.FormValue("start_datetime"), h.loc)
	end, eerr := time.ParseInLocation(inputTimeLayout, c.FormValue("end_datetime"), h.loc)
	if err := errors.Join(serr, eerr); err != nil {
		middleware.SetFlash(c, middleware.FlashDanger, fmt.Sprintf("Time parse failed: %v", err))
		return h.render(c, "google_event_form.html", M{"Event": it})
	}
	if _, err := sess.Update(ctx, id, title, location, start, end); err != nil {
		middleware.SetFlash(c, middleware.FlashDanger, fmt.Sprintf("Update failed: %v", err))
		return h.render(c, "google_event_form.html", M{"Event": it})
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "Event updated", "/calendar")
}
