package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

func (h *Handler) Home(c echo.Context) error {
	u := user(c)
	if u == nil {
		return h.render(c, "home.html", M{})
	}

	var harvested, achievements, memories, participated int
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) { harvested, err = h.store.HarvestedCount(ctx, u.ID); return })
	g.Go(func() (err error) { achievements, err = h.store.AchievementCount(ctx, u.ID); return })
	g.Go(func() (err error) { memories, err = h.store.MemoryCount(ctx, u.ID); return })
	g.Go(func() (err error) { participated, err = h.store.ParticipatedEventCount(ctx, u.ID); return })
	if err := g.Wait(); err != nil {
		return h.fail(c, "home counts", err)
	}
	return h.render(c, "home.html", M{
		"Harvested":    harvested,
		"Achievements": achievements,
		"Memories":     memories,
		"Participated": participated,
	})
}

// Health reports liveness and whether the database answers.
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, M{"status": "unavailable", "database": err.Error()})
	}
	return c.JSON(http.StatusOK, M{"status": "ok", "database": "ok"})
}
