package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	oauthapi "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"grandbridge/internal/cache"
)

var ErrNotConnected = errors.New("google account not connected")

// Google wraps the OAuth flow and the Calendar API for the primary calendar.
type Google struct {
	oauth *oauth2.Config
	cache *cache.Cache
	ttl   time.Duration
	loc   *time.Location
	// overrides the API endpoint in tests
	endpoint string
}

func NewGoogle(clientID, clientSecret, redirectURL string, c *cache.Cache, ttl time.Duration, loc *time.Location) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"openid",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
				gcal.CalendarScope,
			},
		},
		cache: c,
		ttl:   ttl,
		loc:   loc,
	}
}

// AuthURL asks for offline access and always shows the consent screen so a
// refresh token is issued.
func (g *Google) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.oauth.Exchange(ctx, code)
}

// Subject returns the stable Google account id for tok.
func (g *Google) Subject(ctx context.Context, tok *oauth2.Token) (string, error) {
	svc, err := oauthapi.NewService(ctx, g.options(g.oauth.TokenSource(ctx, tok))...)
	if err != nil {
		return "", err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("userinfo: %w", err)
	}
	return info.Id, nil
}

func EncodeToken(tok *oauth2.Token) ([]byte, error) { return json.Marshal(tok) }

func DecodeToken(raw []byte) (*oauth2.Token, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotConnected
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(raw, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Session is a per-user calendar client. Token reports the possibly refreshed token.
type Session struct {
	g      *Google
	ts     oauth2.TokenSource
	svc    *gcal.Service
	userID int64
}

func (g *Google) options(ts oauth2.TokenSource) []option.ClientOption {
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return opts
}

func (g *Google) Session(ctx context.Context, userID int64, tok *oauth2.Token) (*Session, error) {
	if tok == nil {
		return nil, ErrNotConnected
	}
	ts := oauth2.ReuseTokenSource(tok, g.oauth.TokenSource(ctx, tok))
	svc, err := gcal.NewService(ctx, g.options(ts)...)
	if err != nil {
		return nil, err
	}
	return &Session{g: g, ts: ts, svc: svc, userID: userID}, nil
}

func (s *Session) Token() (*oauth2.Token, error) { return s.ts.Token() }

func versionKey(userID int64) string { return fmt.Sprintf("gcal:%d:version", userID) }

// listKey includes the user's listing version, so bumping the version hides
// every month listing cached before a change.
func (s *Session) listKey(ctx context.Context, from, to time.Time) string {
	var v int64
	_ = s.g.cache.Get(ctx, versionKey(s.userID), &v)
	return fmt.Sprintf("gcal:%d:v%d:%s:%s", s.userID, v, from.Format("20060102"), to.Format("20060102"))
}

func eventKey(userID int64, id string) string { return fmt.Sprintf("gcal:%d:event:%s", userID, id) }

// List returns primary calendar events between the first and last day shown.
func (s *Session) List(ctx context.Context, from, to time.Time) ([]Item, error) {
	key := s.listKey(ctx, from, to)
	var items []Item
	if err := s.g.cache.Get(ctx, key, &items); err == nil {
		return inLocation(items, s.g.loc), nil
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
	res, err := s.svc.Events.List("primary").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(100).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list google events: %w", err)
	}

	for _, ev := range res.Items {
		it, ok := fromGoogle(ev, s.g.loc)
		if !ok {
			continue
		}
		items = append(items, it)
		_ = s.g.cache.Set(ctx, eventKey(s.userID, it.ID), it, s.g.ttl)
	}
	_ = s.g.cache.Set(ctx, key, items, s.g.ttl)
	return items, nil
}

// Cached returns an event previously seen by List, falling back to the API.
func (s *Session) Cached(ctx context.Context, id string) (*Item, error) {
	var it Item
	if err := s.g.cache.Get(ctx, eventKey(s.userID, id), &it); err == nil {
		it.Start, it.End = it.Start.In(s.g.loc), it.End.In(s.g.loc)
		return &it, nil
	}
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conv, ok := fromGoogle(ev, s.g.loc)
	if !ok {
		return nil, fmt.Errorf("google event %s has no usable time", id)
	}
	return &conv, nil
}

func (s *Session) Get(ctx context.Context, id string) (*gcal.Event, error) {
	return s.svc.Events.Get("primary", id).Context(ctx).Do()
}

func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.svc.Events.Delete("primary", id).Context(ctx).Do(); err != nil {
		return err
	}
	s.forget(ctx, id)
	return nil
}

// Update rewrites title, location and times; times are wall clock in the configured zone.
func (s *Session) Update(ctx context.Context, id, title, location string, start, end time.Time) (*gcal.Event, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	zone := s.g.loc.String()
	ev.Summary = title
	ev.Location = location
	ev.Start = &gcal.EventDateTime{DateTime: start.In(s.g.loc).Format(time.RFC3339), TimeZone: zone}
	ev.End = &gcal.EventDateTime{DateTime: end.In(s.g.loc).Format(time.RFC3339), TimeZone: zone}

	out, err := s.svc.Events.Update("primary", id, ev).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	s.forget(ctx, id)
	return out, nil
}

// forget drops the cached copy of an event and every cached month listing.
func (s *Session) forget(ctx context.Context, id string) {
	_ = s.g.cache.Delete(ctx, eventKey(s.userID, id))
	_ = s.g.cache.Set(ctx, versionKey(s.userID), time.Now().UnixNano(), s.g.ttl)
}

func fromGoogle(ev *gcal.Event, loc *time.Location) (Item, bool) {
	start, ok := googleTime(ev.Start, loc)
	if !ok {
		return Item{}, false
	}
	end, ok := googleTime(ev.End, loc)
	if !ok {
		end = start
	}
	title := strings.TrimSpace(ev.Summary)
	if title == "" {
		title = "No Title"
	}
	return Item{
		Source:      SourceGoogle,
		ID:          ev.Id,
		Title:       title,
		Start:       start,
		End:         end,
		Location:    ev.Location,
		Description: ev.Description,
		MeetLink:    ev.HangoutLink,
	}, true
}

func googleTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t.In(loc), true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
