package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grandbridge/internal/auth"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

const secret = "test-secret"

type memStore struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	tokens map[string]*store.RefreshToken
	n      int
}

func newMemStore(users ...*model.User) *memStore {
	m := &memStore{users: map[int64]*model.User{}, tokens: map[string]*store.RefreshToken{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memStore) UserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateRefreshToken(_ context.Context, userID int64, hash string, exp time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(userID, hash, exp), nil
}

func (m *memStore) add(userID int64, hash string, exp time.Time) string {
	m.n++
	id := fmt.Sprint(m.n)
	m.tokens[hash] = &store.RefreshToken{ID: id, UserID: userID, TokenHash: hash, ExpiresAt: exp, CreatedAt: time.Now()}
	return id
}

func (m *memStore) GetRefreshTokenByHash(_ context.Context, hash string) (*store.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.tokens[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rt
	if rt.ReplacedBy != nil {
		for _, n := range m.tokens {
			if n.ID == *rt.ReplacedBy {
				cp.ReplacementLive = !n.Revoked || n.ReplacedBy != nil
			}
		}
	}
	return &cp, nil
}

// backdate moves the rotation time of the token with hash d into the past.
func (m *memStore) backdate(hash string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := m.tokens[hash].ReplacedAt.Add(-d)
	m.tokens[hash].ReplacedAt = &at
}

func (m *memStore) RotateRefreshToken(_ context.Context, oldID string, userID int64, newHash string, exp time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.tokens {
		if rt.ID == oldID {
			if rt.Revoked {
				return "", store.ErrNotFound
			}
			id := m.add(userID, newHash, exp)
			now := time.Now()
			rt.Revoked = true
			rt.ReplacedBy = &id
			rt.ReplacedAt = &now
			return id, nil
		}
	}
	return "", store.ErrNotFound
}

func (m *memStore) RevokeAllRefreshTokens(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (m *memStore) live(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rt := range m.tokens {
		if rt.UserID == userID && !rt.Revoked {
			n++
		}
	}
	return n
}

// cookie returns the last Set-Cookie for name.
func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

func issue(t *testing.T, s *Sessions, uid int64, remember bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/login", nil), rec)
	require.NoError(t, s.Issue(c, uid, remember))
	return rec
}

// run sends req through Load and reports the user the handler saw.
func run(s *Sessions, req *http.Request) (*model.User, *httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var seen *model.User
	err := s.Load(func(c echo.Context) error {
		seen = CurrentUser(c)
		return nil
	})(c)
	return seen, rec, err
}

func TestIssueSetsCookies(t *testing.T) {
	s := NewSessions(newMemStore(), secret, true, zap.NewNop())

	rec := issue(t, s, 1, false)
	access, refresh := cookie(rec, AccessCookie), cookie(rec, RefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Zero(t, refresh.MaxAge, "session cookie unless remembered")

	rec = issue(t, s, 1, true)
	assert.Equal(t, int(auth.RememberTTL.Seconds()), cookie(rec, RefreshCookie).MaxAge)
}

func TestLoadAccessToken(t *testing.T) {
	st := newMemStore(&model.User{ID: 1, Username: "gran"})
	s := NewSessions(st, secret, false, zap.NewNop())

	tok, err := auth.MakeToken(1, secret)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tok})

	u, _, err := run(s, req)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "gran", u.Username)

	u, _, err = run(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestLoadRefreshRotation(t *testing.T) {
	st := newMemStore(&model.User{ID: 1, Username: "gran"})
	s := NewSessions(st, secret, false, zap.NewNop())
	old := cookie(issue(t, s, 1, true), RefreshCookie).Value

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "expired"})
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: old})

	u, rec, err := run(s, req)
	require.NoError(t, err)
	require.NotNil(t, u)
	fresh := cookie(rec, RefreshCookie)
	require.NotNil(t, fresh)
	assert.NotEqual(t, old, fresh.Value)
	assert.NotNil(t, cookie(rec, AccessCookie))
	assert.InDelta(t, auth.RememberTTL.Seconds(), float64(fresh.MaxAge), 5)
	assert.Equal(t, 1, st.live(1))

	// replaying the rotated token long after rotation ends every session of the user
	st.backdate(auth.HashRefreshToken(old), time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: old})
	u, _, err = run(s, req)
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.Equal(t, 0, st.live(1))
}

func TestLoadParallelRefresh(t *testing.T) {
	st := newMemStore(&model.User{ID: 1, Username: "gran"})
	s := NewSessions(st, secret, false, zap.NewNop())
	old := cookie(issue(t, s, 1, false), RefreshCookie).Value

	var seen []bool
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/event/1/chat/messages", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: old})
		u, rec, err := run(s, req)
		require.NoError(t, err)
		seen = append(seen, u != nil)
		assert.NotNil(t, cookie(rec, AccessCookie))
	}
	assert.Equal(t, []bool{true, true, true}, seen)
	assert.Equal(t, 1, st.live(1))
}

func TestLoadReplayAfterLogout(t *testing.T) {
	st := newMemStore(&model.User{ID: 1, Username: "gran"})
	s := NewSessions(st, secret, false, zap.NewNop())
	old := cookie(issue(t, s, 1, false), RefreshCookie).Value

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: old})
	u, _, err := run(s, req)
	require.NoError(t, err)
	require.NotNil(t, u)

	require.NoError(t, st.RevokeAllRefreshTokens(context.Background(), 1))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: old})
	u, _, err = run(s, req)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestLoadUnknownUserClears(t *testing.T) {
	s := NewSessions(newMemStore(), secret, false, zap.NewNop())
	tok, _ := auth.MakeToken(42, secret)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: tok})

	u, rec, err := run(s, req)
	require.NoError(t, err)
	assert.Nil(t, u)
	require.NotNil(t, cookie(rec, AccessCookie))
	assert.Equal(t, -1, cookie(rec, AccessCookie).MaxAge)
}

func TestRequireLoginAndAdmin(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/planting?x=1", nil), rec)
	require.NoError(t, RequireLogin(ok)(c))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fplanting%3Fx%3D1", rec.Header().Get(echo.HeaderLocation))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/foodmap/save_location", nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, rec)
	c.Set(userKey, &model.User{ID: 1})
	require.NoError(t, RequireAdmin(ok)(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/events/new", nil), rec)
	c.Set(userKey, &model.User{ID: 1})
	require.NoError(t, RequireAdmin(ok)(c))
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/events/new", nil), rec)
	c.Set(userKey, &model.User{ID: 1, IsAdmin: true})
	require.NoError(t, RequireAdmin(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFlashes(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	SetFlash(c, FlashSuccess, "Saved")
	SetFlash(c, FlashWarning, "Careful")

	carried := cookie(rec, flashCookie)
	require.NotNil(t, carried)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(carried)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	got := Flashes(c)
	assert.Equal(t, []Flash{{FlashSuccess, "Saved"}, {FlashWarning, "Careful"}}, got)
	assert.Empty(t, Flashes(c))
	assert.Equal(t, -1, cookie(rec, flashCookie).MaxAge)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 1, 2)

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"), "limits are per address")

	rl.sweep(0)
	assert.True(t, rl.Allow("1.1.1.1"), "swept visitors start over")

	e := echo.New()
	h := rl.Limit(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		rec := httptest.NewRecorder()
		require.NoError(t, h(e.NewContext(req, rec)))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}
