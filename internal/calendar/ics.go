package calendar

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"grandbridge/internal/cache"
)

const maxICSBytes = 5 << 20

// ICS fetches and parses subscribed .ics feeds, caching parsed items.
type ICS struct {
	client *http.Client
	cache  *cache.Cache
	ttl    time.Duration
}

func NewICS(client *http.Client, c *cache.Cache, ttl time.Duration) *ICS {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ICS{client: client, cache: c, ttl: ttl}
}

func icsKey(url string) string {
	h := sha1.Sum([]byte(url))
	return "ics:" + hex.EncodeToString(h[:])
}

func (f *ICS) Fetch(ctx context.Context, url string, loc *time.Location) ([]Item, error) {
	var items []Item
	if err := f.cache.Get(ctx, icsKey(url), &items); err == nil {
		return inLocation(items, loc), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ics: status %d", res.StatusCode)
	}

	items, err = ParseICS(io.LimitReader(res.Body, maxICSBytes), loc)
	if err != nil {
		return nil, err
	}
	_ = f.cache.Set(ctx, icsKey(url), items, f.ttl)
	return items, nil
}

// ParseICS reads VEVENTs. An event without an end ends when it starts.
func ParseICS(r io.Reader, loc *time.Location) ([]Item, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	var out []Item
	for _, ev := range cal.Events() {
		start, err := ev.GetStartAt()
		if err != nil {
			if start, err = ev.GetAllDayStartAt(); err != nil {
				continue
			}
		}
		end, err := ev.GetEndAt()
		if err != nil {
			if end, err = ev.GetAllDayEndAt(); err != nil {
				end = start
			}
		}
		out = append(out, Item{
			Source:      SourceExternal,
			ID:          ev.Id(),
			Title:       prop(ev, ics.ComponentPropertySummary, "No Title"),
			Start:       start.In(loc),
			End:         end.In(loc),
			Location:    prop(ev, ics.ComponentPropertyLocation, ""),
			Description: prop(ev, ics.ComponentPropertyDescription, ""),
		})
	}
	return out, nil
}

func prop(ev *ics.VEvent, p ics.ComponentProperty, fallback string) string {
	if v := ev.GetProperty(p); v != nil && strings.TrimSpace(v.Value) != "" {
		return v.Value
	}
	return fallback
}

func inLocation(items []Item, loc *time.Location) []Item {
	for i := range items {
		items[i].Start = items[i].Start.In(loc)
		items[i].End = items[i].End.In(loc)
	}
	return items
}

// ValidURL accepts absolute http(s) feed URLs; webcal is rewritten to https.
func ValidURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "webcal://") {
		raw = "https://" + strings.TrimPrefix(raw, "webcal://")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", false
	}
	if len(raw) <= len("https://") {
		return "", false
	}
	return raw, true
}
