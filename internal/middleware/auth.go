package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/auth"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	userKey = "user"

	// parallel requests may all carry the refresh cookie that one of them
	// just rotated
	rotationGrace = 10 * time.Second
)

var ErrNoSession = errors.New("no session")

// SessionStore is the part of the store the session layer needs.
type SessionStore interface {
	UserByID(ctx context.Context, id int64) (*model.User, error)
	CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID string, userID int64, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, userID int64) error
}

// Sessions issues and checks the access/refresh cookie pair.
type Sessions struct {
	store  SessionStore
	secret string
	secure bool
	log    *zap.Logger
}

func NewSessions(st SessionStore, secret string, secure bool, log *zap.Logger) *Sessions {
	return &Sessions{store: st, secret: secret, secure: secure, log: log}
}

// Issue starts a session for userID.
func (s *Sessions) Issue(c echo.Context, userID int64, remember bool) error {
	ttl := auth.RefreshTTL
	if remember {
		ttl = auth.RememberTTL
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return err
	}
	if _, err := s.store.CreateRefreshToken(c.Request().Context(), userID, hash, time.Now().Add(ttl)); err != nil {
		return err
	}
	access, err := auth.MakeToken(userID, s.secret)
	if err != nil {
		return err
	}
	s.setCookies(c, access, raw, ttl, remember)
	return nil
}

// Refresh swaps the refresh cookie for a new pair and returns the user id.
// A revoked token presented again within rotationGrace of its rotation still
// identifies the user; later reuse revokes every token of the user.
func (s *Sessions) Refresh(c echo.Context) (int64, error) {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		return 0, ErrNoSession
	}
	ctx := c.Request().Context()
	rt, err := s.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(ck.Value))
	if errors.Is(err, store.ErrNotFound) {
		s.Clear(c)
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, err
	}

	now := time.Now()
	if rt.RecentlyRotated(now, rotationGrace) {
		access, err := auth.MakeToken(rt.UserID, s.secret)
		if err != nil {
			return 0, err
		}
		s.setAccessCookie(c, access)
		return rt.UserID, nil
	}
	if !rt.Usable(now) {
		if rt.Revoked && rt.ReplacedBy != nil {
			s.log.Warn("refresh token reuse", zap.Int64("user_id", rt.UserID))
			if err := s.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
				return 0, err
			}
		}
		s.Clear(c)
		return 0, ErrNoSession
	}

	// keep the lifetime chosen at login
	ttl := rt.ExpiresAt.Sub(rt.CreatedAt)
	if ttl <= 0 {
		ttl = auth.RefreshTTL
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return 0, err
	}
	if _, err := s.store.RotateRefreshToken(ctx, rt.ID, rt.UserID, hash, now.Add(ttl)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNoSession
		}
		return 0, err
	}
	access, err := auth.MakeToken(rt.UserID, s.secret)
	if err != nil {
		return 0, err
	}
	s.setCookies(c, access, raw, ttl, ttl > auth.RefreshTTL)
	return rt.UserID, nil
}

// End revokes the user's refresh tokens and clears the cookies.
func (s *Sessions) End(c echo.Context, userID int64) error {
	s.Clear(c)
	return s.store.RevokeAllRefreshTokens(c.Request().Context(), userID)
}

func (s *Sessions) Clear(c echo.Context) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		c.SetCookie(&http.Cookie{
			Name: name, Value: "", Path: "/", MaxAge: -1,
			HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
		})
	}
}

// setCookies writes the pair; without persist the refresh cookie lasts for the
// browser session only.
func (s *Sessions) setCookies(c echo.Context, access, refresh string, ttl time.Duration, persist bool) {
	s.setAccessCookie(c, access)
	rc := &http.Cookie{
		Name: RefreshCookie, Value: refresh, Path: "/",
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
	}
	if persist {
		rc.MaxAge = int(ttl.Seconds())
	}
	c.SetCookie(rc)
}

func (s *Sessions) setAccessCookie(c echo.Context, access string) {
	c.SetCookie(&http.Cookie{
		Name: AccessCookie, Value: access, Path: "/",
		MaxAge:   int(auth.AccessTTL.Seconds()),
		HttpOnly: true, Secure: s.secure, SameSite: http.SameSiteLaxMode,
	})
}

// Load puts the signed-in user, if any, on the context. An expired access
// token is renewed from the refresh cookie.
func (s *Sessions) Load(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var uid int64
		if ck, err := c.Cookie(AccessCookie); err == nil {
			if claims, err := auth.ParseToken(ck.Value, s.secret); err == nil {
				uid = claims.UserID
			}
		}
		if uid == 0 {
			id, err := s.Refresh(c)
			if err != nil && !errors.Is(err, ErrNoSession) {
				return err
			}
			uid = id
		}
		if uid != 0 {
			u, err := s.store.UserByID(c.Request().Context(), uid)
			switch {
			case err == nil:
				c.Set(userKey, u)
			case errors.Is(err, store.ErrNotFound):
				s.Clear(c)
			default:
				return err
			}
		}
		return next(c)
	}
}

func CurrentUser(c echo.Context) *model.User {
	u, _ := c.Get(userKey).(*model.User)
	return u
}

// RequireLogin sends anonymous browsers to the login page and JSON clients a 401.
func RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if CurrentUser(c) != nil {
			return next(c)
		}
		if wantsJSON(c) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "login required"})
		}
		SetFlash(c, FlashInfo, "Please log in to access this page.")
		return c.Redirect(http.StatusSeeOther, "/login?next="+url.QueryEscape(c.Request().URL.RequestURI()))
	}
}

// RequireAdmin must run after RequireLogin.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if u := CurrentUser(c); u != nil && u.IsAdmin {
			return next(c)
		}
		if wantsJSON(c) {
			return c.JSON(http.StatusForbidden, map[string]string{"status": "failed", "message": "Admin access required"})
		}
		SetFlash(c, FlashDanger, "Only an admin can access this page")
		return c.Redirect(http.StatusSeeOther, "/")
	}
}

func wantsJSON(c echo.Context) bool {
	r := c.Request()
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) ||
		strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
