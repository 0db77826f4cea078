package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"grandbridge/internal/calendar"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
)

func visibleTo(e *model.Event, families []int64) bool {
	for _, want := range families {
		for _, fid := range e.FamilyIDs {
			if fid == want {
				return true
			}
		}
	}
	return false
}

// visibleEvent loads an event the current user may see; others are not found.
func (h *Handler) visibleEvent(c echo.Context) (*model.Event, []int64, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, nil, err
	}
	ctx := c.Request().Context()
	e, err := h.store.GetEvent(ctx, id)
	if isNotFound(err) {
		return nil, nil, notFound()
	}
	if err != nil {
		return nil, nil, h.fail(c, "load event", err)
	}
	families, err := h.store.VisibleFamilyIDs(ctx, user(c))
	if err != nil {
		return nil, nil, h.fail(c, "load families", err)
	}
	if !visibleTo(e, families) {
		return nil, nil, notFound()
	}
	return e, families, nil
}

// Events lists today's events.
func (h *Handler) Events(c echo.Context) error {
	ctx := c.Request().Context()
	families, err := h.store.VisibleFamilyIDs(ctx, user(c))
	if err != nil {
		return h.fail(c, "load families", err)
	}
	today := h.today()
	events, err := h.store.EventsStartingBetween(ctx, families, today, today.AddDate(0, 0, 1))
	if err != nil {
		return h.fail(c, "list events", err)
	}
	return h.render(c, "events.html", M{"Events": events})
}

func (h *Handler) Event(c echo.Context) error {
	e, _, err := h.visibleEvent(c)
	if err != nil {
		return err
	}
	u := user(c)
	ctx := c.Request().Context()
	data := M{"Event": e}
	if u.IsAdmin && len(e.FamilyIDs) > 0 {
		fams, err := h.store.FamiliesByIDs(ctx, e.FamilyIDs)
		if err != nil {
			return h.fail(c, "load event families", err)
		}
		data["Families"] = fams
	}
	joined, err := h.store.IsParticipant(ctx, e.ID, u.ID)
	if err != nil {
		return h.fail(c, "check participant", err)
	}
	data["Participating"] = joined
	return h.render(c, "event.html", data)
}

// eventForm validates the event fields; family ids must be among managed.
func (h *Handler) eventForm(c echo.Context, managed []model.Family) (*model.Event, *form) {
	f := newForm(c)
	e := &model.Event{
		Title:       f.required("title"),
		Start:       f.localTime("start", h.loc),
		End:         f.localTime("end", h.loc),
		Location:    f.get("location"),
		Description: f.get("description"),
	}
	if !e.Start.IsZero() && !e.End.IsZero() && e.End.Before(e.Start) {
		f.fail("end", "End time must not be before start time.")
	}
	allowed := make(map[int64]bool, len(managed))
	for _, fam := range managed {
		allowed[fam.ID] = true
	}
	values, _ := c.FormParams()
	for _, raw := range values["family_ids"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !allowed[id] {
			f.fail("family_ids", "Not a valid choice.")
			continue
		}
		e.FamilyIDs = append(e.FamilyIDs, id)
	}
	if e.FamilyIDs == nil {
		e.FamilyIDs = []int64{}
	}
	return e, f
}

func familyNames(families []model.Family, ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, fam := range families {
		for _, id := range ids {
			if fam.ID == id {
				names = append(names, fam.Name)
				break
			}
		}
	}
	return strings.Join(names, ", ")
}

func (h *Handler) NewEvent(c echo.Context) error {
	ctx := c.Request().Context()
	managed, err := h.store.AdminFamilies(ctx, user(c).ID)
	if err != nil {
		return h.fail(c, "list families", err)
	}
	if c.Request().Method == http.MethodGet {
		return h.render(c, "event_form.html", M{"Families": managed, "Event": &model.Event{}, "Action": "/events/new"})
	}

	e, f := h.eventForm(c, managed)
	if !f.valid() {
		return h.render(c, "event_form.html", M{"Families": managed, "Event": e, "Action": "/events/new", "Errors": f.Errors})
	}
	if err := h.store.CreateEvent(ctx, e); err != nil {
		return h.fail(c, "create event", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess,
		fmt.Sprintf("Event created successfully for families: %s!", familyNames(managed, e.FamilyIDs)), "/calendar")
}

func (h *Handler) EditEvent(c echo.Context) error {
	existing, _, err := h.visibleEvent(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	managed, err := h.store.AdminFamilies(ctx, user(c).ID)
	if err != nil {
		return h.fail(c, "list families", err)
	}
	action := fmt.Sprintf("/event/%d/edit", existing.ID)
	if c.Request().Method == http.MethodGet {
		return h.render(c, "event_form.html", M{"Families": managed, "Event": existing, "Action": action})
	}

	e, f := h.eventForm(c, managed)
	e.ID = existing.ID
	if !f.valid() {
		return h.render(c, "event_form.html", M{"Families": managed, "Event": e, "Action": action, "Errors": f.Errors})
	}
	if err := h.store.UpdateEvent(ctx, e); err != nil {
		if isNotFound(err) {
			return notFound()
		}
		return h.fail(c, "update event", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess,
		fmt.Sprintf("Event updated successfully for families: %s!", familyNames(managed, e.FamilyIDs)),
		fmt.Sprintf("/event/%d", e.ID))
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	e, _, err := h.visibleEvent(c)
	if err != nil {
		return err
	}
	if err := h.store.DeleteEvent(c.Request().Context(), e.ID); err != nil && !isNotFound(err) {
		return h.fail(c, "delete event", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "You have deleted this event", "/home")
}

// Calendar renders the month grid merged from every connected source.
func (h *Handler) Calendar(c echo.Context) error {
	u := user(c)
	ctx := c.Request().Context()

	year, _ := strconv.Atoi(c.QueryParam("year"))
	month, _ := strconv.Atoi(c.QueryParam("month"))
	now := h.now()
	y, m := calendar.Normalize(year, month, now)
	from, to := calendar.Span(y, m, h.loc)
	filter := calendar.ParseSource(c.QueryParam("source"))

	families, err := h.store.VisibleFamilyIDs(ctx, u)
	if err != nil {
		return h.fail(c, "load families", err)
	}
	events, err := h.store.VisibleEvents(ctx, families, from, to.AddDate(0, 0, 1))
	if err != nil {
		return h.fail(c, "list events", err)
	}

	fetches := map[calendar.Source]calendar.Fetch{}
	if u.ICSURL != "" {
		fetches[calendar.SourceExternal] = func(ctx context.Context) ([]calendar.Item, error) {
			return h.ics.Fetch(ctx, u.ICSURL, h.loc)
		}
	}
	if h.google != nil && len(u.GoogleToken) > 0 {
		fetches[calendar.SourceGoogle] = func(ctx context.Context) ([]calendar.Item, error) {
			sess, err := h.googleSession(ctx, u)
			if err != nil {
				return nil, err
			}
			items, err := sess.List(ctx, from, to)
			h.saveGoogleToken(ctx, u, sess)
			return items, err
		}
	}
	external := calendar.Collect(ctx, h.log, fetches)

	view := calendar.Build(y, m, now, filter,
		calendar.FromEvents(events, h.loc),
		external[calendar.SourceExternal],
		external[calendar.SourceGoogle])
	py, pm := view.Prev()
	ny, nm := view.Next()
	return h.render(c, "calendar.html", M{
		"Month":    view,
		"PrevYear": py, "PrevMonth": pm,
		"NextYear": ny, "NextMonth": nm,
		"GoogleConnected": len(u.GoogleToken) > 0,
		"Subscribed":      u.ICSURL,
	})
}

// Subscribe stores an .ics feed URL for the user.
func (h *Handler) Subscribe(c echo.Context) error {
	raw := c.QueryParam("url")
	if strings.TrimSpace(raw) == "" {
		return c.String(http.StatusBadRequest, "Missing .ics URL")
	}
	feed, ok := calendar.ValidURL(raw)
	if !ok {
		return c.String(http.StatusBadRequest, "Invalid .ics URL")
	}
	if err := h.store.SetICSURL(c.Request().Context(), user(c).ID, feed); err != nil {
		return h.fail(c, "save ics url", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "You have subscribed the calendar", "/calendar")
}
