package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"grandbridge/internal/cache"
)

const feed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//grandbridge//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:term-1\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250314T090000Z\r\n" +
	"DTEND:20250314T100000Z\r\n" +
	"SUMMARY:School term\r\n" +
	"LOCATION:Main hall\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:bare-2\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250320T080000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	items, err := ParseICS(strings.NewReader(feed), time.UTC)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "term-1", items[0].ID)
	assert.Equal(t, "School term", items[0].Title)
	assert.Equal(t, "Main hall", items[0].Location)
	assert.Equal(t, SourceExternal, items[0].Source)
	assert.Equal(t, at(3, 14, 10, 0), items[0].End)

	assert.Equal(t, "No Title", items[1].Title)
	assert.Equal(t, items[1].Start, items[1].End)
}

func TestICSFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	f := NewICS(srv.Client(), cache.New(context.Background(), "", zap.NewNop()), time.Minute)

	items, err := f.Fetch(context.Background(), srv.URL+"/family.ics", time.UTC)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.ics", time.UTC)
	assert.Error(t, err)
}

func TestValidURL(t *testing.T) {
	u, ok := ValidURL(" webcal://example.org/a.ics ")
	assert.True(t, ok)
	assert.Equal(t, "https://example.org/a.ics", u)

	_, ok = ValidURL("ftp://example.org/a.ics")
	assert.False(t, ok)
	_, ok = ValidURL("https://")
	assert.False(t, ok)
}

func TestFromGoogle(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skip("no tzdata")
	}
	it, ok := fromGoogle(&gcal.Event{
		Id:          "g1",
		HangoutLink: "https://meet.google.com/abc",
		Start:       &gcal.EventDateTime{DateTime: "2025-07-01T09:30:00Z"},
		End:         &gcal.EventDateTime{DateTime: "2025-07-01T10:00:00Z"},
	}, london)
	require.True(t, ok)
	assert.Equal(t, "No Title", it.Title)
	assert.Equal(t, "10:30", it.StartTime())
	assert.Equal(t, "11:00", it.EndTime())
	assert.Equal(t, "https://meet.google.com/abc", it.MeetLink)

	day, ok := fromGoogle(&gcal.Event{Id: "g2", Summary: "Holiday",
		Start: &gcal.EventDateTime{Date: "2025-07-04"}}, london)
	require.True(t, ok)
	assert.Equal(t, day.Start, day.End)

	_, ok = fromGoogle(&gcal.Event{Id: "g3"}, london)
	assert.False(t, ok)
}

func TestGoogleSessionList(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		assert.Equal(t, "startTime", r.URL.Query().Get("orderBy"))
		assert.Equal(t, "Bearer live-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"id":"g1","summary":"Doctor","location":"Clinic","hangoutLink":"https://meet.google.com/x",
			 "start":{"dateTime":"2025-03-16T11:00:00Z"},"end":{"dateTime":"2025-03-16T12:00:00Z"}},
			{"id":"broken","start":{}}
		]}`))
	}))
	defer srv.Close()

	g := NewGoogle("id", "secret", "http://localhost/callback", cache.New(context.Background(), "", zap.NewNop()), time.Minute, time.UTC)
	g.endpoint = srv.URL + "/"

	tok := &oauth2.Token{AccessToken: "live-token", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	s, err := g.Session(context.Background(), 7, tok)
	require.NoError(t, err)

	items, err := s.List(context.Background(), at(2, 23, 0, 0), at(4, 5, 0, 0))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Doctor", items[0].Title)
	assert.Equal(t, SourceGoogle, items[0].Source)
	assert.EqualValues(t, 1, calls.Load())

	cur, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "live-token", cur.AccessToken)
}

func TestGoogleDeleteDropsListing(t *testing.T) {
	var lists atomic.Int32
	deleted := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/g1"):
			deleted.Store(true)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
			lists.Add(1)
			if deleted.Load() {
				w.Write([]byte(`{"items":[]}`))
				return
			}
			w.Write([]byte(`{"items":[{"id":"g1","summary":"Doctor",
				"start":{"dateTime":"2025-03-16T11:00:00Z"},"end":{"dateTime":"2025-03-16T12:00:00Z"}}]}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	c := cache.FromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })

	g := NewGoogle("id", "secret", "http://localhost/callback", c, time.Minute, time.UTC)
	g.endpoint = srv.URL + "/"
	tok := &oauth2.Token{AccessToken: "live-token", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	ctx := context.Background()
	s, err := g.Session(ctx, 7, tok)
	require.NoError(t, err)

	from, to := at(2, 23, 0, 0), at(4, 5, 0, 0)
	items, err := s.List(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// served from the cache
	items, err = s.List(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.EqualValues(t, 1, lists.Load())

	require.NoError(t, s.Delete(ctx, "g1"))
	items, err = s.List(ctx, from, to)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.EqualValues(t, 2, lists.Load())

	assert.False(t, mr.Exists("grandbridge:gcal:7:event:g1"))
}

func TestGoogleAuthURL(t *testing.T) {
	g := NewGoogle("client-1", "secret", "http://localhost/callback", nil, time.Minute, time.UTC)
	u := g.AuthURL("state-xyz")
	assert.Contains(t, u, "access_type=offline")
	assert.Contains(t, u, "prompt=consent")
	assert.Contains(t, u, "state=state-xyz")
	assert.Contains(t, u, "client_id=client-1")
}

func TestTokenCodec(t *testing.T) {
	_, err := DecodeToken(nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	raw, err := EncodeToken(&oauth2.Token{AccessToken: "a", RefreshToken: "r"})
	require.NoError(t, err)
	tok, err := DecodeToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "r", tok.RefreshToken)
}

func TestCollectIsolatesFailures(t *testing.T) {
	got := Collect(context.Background(), zap.NewNop(), map[Source]Fetch{
		SourceExternal: func(context.Context) ([]Item, error) {
			return nil, errors.New("feed down")
		},
		SourceGoogle: func(ctx context.Context) ([]Item, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			return []Item{{Source: SourceGoogle, Title: "Doctor"}}, nil
		},
	})
	assert.Empty(t, got[SourceExternal])
	require.Len(t, got[SourceGoogle], 1)
	assert.Equal(t, "Doctor", got[SourceGoogle][0].Title)
}
