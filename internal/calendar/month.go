// Package calendar builds the month view: a Sunday-first grid of days filled with
// internal events, subscribed .ics feeds and Google Calendar entries.
package calendar

import (
	"time"

	"grandbridge/internal/model"
)

type Source string

const (
	SourceAll      Source = ""
	SourceInternal Source = "internal"
	SourceExternal Source = "external"
	SourceGoogle   Source = "google"
)

func ParseSource(s string) Source {
	switch Source(s) {
	case SourceInternal, SourceExternal, SourceGoogle:
		return Source(s)
	}
	return SourceAll
}

func (f Source) includes(s Source) bool { return f == SourceAll || f == s }

// Item is one entry on the calendar regardless of where it came from.
type Item struct {
	Source      Source    `json:"source"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	MeetLink    string    `json:"meet_link,omitempty"`
}

func (it Item) StartTime() string { return it.Start.Format("15:04") }
func (it Item) EndTime() string   { return it.End.Format("15:04") }

// on reports whether the item is shown on day. Google entries appear on their
// start date only; the rest span start..end inclusive.
func (it Item) on(day time.Time) bool {
	d := model.Civil(day)
	start := model.Civil(it.Start)
	if it.Source == SourceGoogle {
		return start.Equal(d)
	}
	end := model.Civil(it.End)
	if it.End.IsZero() {
		end = start
	}
	return !start.After(d) && !d.After(end)
}

func FromEvents(events []model.Event, loc *time.Location) []Item {
	out := make([]Item, len(events))
	for i, e := range events {
		out[i] = Item{
			Source:      SourceInternal,
			ID:          itoa(e.ID),
			Title:       e.Title,
			Start:       e.Start.In(loc),
			End:         e.End.In(loc),
			Location:    e.Location,
			Description: e.Description,
		}
	}
	return out
}

type Day struct {
	Date    time.Time
	InMonth bool
	IsToday bool
	Items   []Item
}

type Month struct {
	Year        int
	Month       time.Month
	Source      Source
	Weeks       [][]Day
	EventsCount int
	TodayCount  int
	WeekCount   int
}

func (m *Month) Prev() (int, int) { return m.step(-1) }
func (m *Month) Next() (int, int) { return m.step(1) }

func (m *Month) step(n int) (int, int) {
	t := time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), int(t.Month())
}

// Normalize resolves year/month query values. Missing values mean the current
// month; a month below 1 or above 12 steps into the adjacent year.
func Normalize(year, month int, today time.Time) (int, time.Month) {
	if year == 0 || month == 0 {
		return today.Year(), today.Month()
	}
	switch {
	case month < 1:
		return year - 1, time.December
	case month > 12:
		return year + 1, time.January
	}
	return year, time.Month(month)
}

// Grid returns the full Sunday-first weeks covering the month.
func Grid(year int, month time.Month, loc *time.Location) [][]time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	last := first.AddDate(0, 1, -1)
	end := last.AddDate(0, 0, 6-int(last.Weekday()))

	var weeks [][]time.Time
	for d := start; !d.After(end); {
		week := make([]time.Time, 7)
		for i := range week {
			week[i] = d
			d = d.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
	}
	return weeks
}

// Span is the first and last day shown for the month.
func Span(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	g := Grid(year, month, loc)
	return g[0][0], g[len(g)-1][6]
}

// WeekOf returns Monday and Sunday of the week containing day.
func WeekOf(day time.Time) (time.Time, time.Time) {
	d := model.Civil(day)
	offset := (int(d.Weekday()) + 6) % 7
	mon := d.AddDate(0, 0, -offset)
	return mon, mon.AddDate(0, 0, 6)
}

// Build lays items onto the month grid and counts them.
func Build(year int, month time.Month, today time.Time, filter Source, items ...[]Item) *Month {
	m := &Month{Year: year, Month: month, Source: filter}
	todayDate := model.Civil(today)
	mon, sun := WeekOf(today)

	var all []Item
	for _, list := range items {
		for _, it := range list {
			if filter.includes(it.Source) {
				all = append(all, it)
			}
		}
	}

	for _, week := range Grid(year, month, today.Location()) {
		row := make([]Day, len(week))
		for i, d := range week {
			day := Day{Date: d, InMonth: d.Month() == month}
			for _, it := range all {
				if it.on(d) {
					day.Items = append(day.Items, it)
				}
			}
			cd := model.Civil(d)
			day.IsToday = cd.Equal(todayDate)
			n := len(day.Items)
			m.EventsCount += n
			if day.IsToday {
				m.TodayCount = n
			}
			if !cd.Before(mon) && !cd.After(sun) {
				m.WeekCount += n
			}
			row[i] = day
		}
		m.Weeks = append(m.Weeks, row)
	}
	return m
}
