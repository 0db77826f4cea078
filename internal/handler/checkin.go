package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/mail"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
	"grandbridge/internal/wellness"
)

func (h *Handler) DailyCheckIn(c echo.Context) error {
	u := user(c)
	ctx := c.Request().Context()
	today := h.today()

	existing, err := h.store.CheckInOn(ctx, u.ID, today)
	if err != nil && !isNotFound(err) {
		return h.fail(c, "load today's check-in", err)
	}
	if existing != nil {
		return h.flashRedirect(c, middleware.FlashInfo,
			"You already completed today's check-in! Come back tomorrow.",
			fmt.Sprintf("/checkin/%d", existing.ID))
	}
	if c.Request().Method == http.MethodGet {
		return h.render(c, "daily_checkin.html", M{"Today": today})
	}

	f := newForm(c)
	ci := &model.CheckIn{
		UserID:                u.ID,
		Date:                  today,
		EnergyLevel:           ratingOr3(f, "energy_level"),
		MoodRating:            ratingOr3(f, "mood_rating"),
		StressLevel:           ratingOr3(f, "stress_level"),
		SleepQuality:          ratingOr3(f, "sleep_quality"),
		TookBreaks:            f.checked("took_breaks"),
		AteWell:               f.checked("ate_well"),
		ConnectedWithOthers:   f.checked("connected_with_others"),
		DidSomethingEnjoyable: f.checked("did_something_enjoyable"),
		GratefulFor:           f.get("grateful_for"),
		BiggestChallenge:      f.get("biggest_challenge"),
	}
	err = h.store.CreateCheckIn(ctx, ci)
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race with another tab
		if existing, err := h.store.CheckInOn(ctx, u.ID, today); err == nil {
			return h.flashRedirect(c, middleware.FlashInfo,
				"You already completed today's check-in! Come back tomorrow.",
				fmt.Sprintf("/checkin/%d", existing.ID))
		}
		return h.redirect(c, "/checkin/history")
	}
	if err != nil {
		return h.fail(c, "create check-in", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess,
		fmt.Sprintf("Check-in complete! You earned %d coins. 🌟", wellness.CheckInCoins),
		fmt.Sprintf("/checkin/%d", ci.ID))
}

func ratingOr3(f *form, name string) int {
	n, err := strconv.Atoi(f.get(name))
	return wellness.ClampRating(n, err == nil)
}

func (h *Handler) CheckIn(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	ci, err := h.store.GetCheckIn(ctx, id)
	if isNotFound(err) {
		return notFound()
	}
	if err != nil {
		return h.fail(c, "get check-in", err)
	}
	if ci.UserID != user(c).ID {
		return forbidden()
	}
	week, err := h.store.CheckInsBetween(ctx, ci.UserID, ci.Date.AddDate(0, 0, -wellness.WeekWindow), ci.Date)
	if err != nil {
		return h.fail(c, "weekly check-ins", err)
	}
	return h.render(c, "view_checkin.html", M{
		"CheckIn":     ci,
		"Score":       wellness.CheckInScore(ci),
		"Insights":    wellness.CheckInInsights(ci),
		"WeeklyCount": len(week),
	})
}

func (h *Handler) CheckInHistory(c echo.Context) error {
	checkins, err := h.store.RecentCheckIns(c.Request().Context(), user(c).ID, 30)
	if err != nil {
		return h.fail(c, "check-in history", err)
	}
	return h.render(c, "checkin_history.html", M{
		"CheckIns": checkins,
		"Averages": wellness.Average(checkins),
	})
}

// weeklyReport gathers the last seven days of activity for u.
func (h *Handler) weeklyReport(ctx context.Context, u *model.User) (*wellness.WeeklyReport, error) {
	now := h.now()
	since := now.AddDate(0, 0, -wellness.WeekWindow)

	plants, err := h.store.VegetablesSince(ctx, u.ID, since)
	if err != nil {
		return nil, fmt.Errorf("plants: %w", err)
	}
	checkins, err := h.store.CheckInsBetween(ctx, u.ID, since, now)
	if err != nil {
		return nil, fmt.Errorf("check-ins: %w", err)
	}
	logs, err := h.store.MindfulnessSince(ctx, u.ID, since)
	if err != nil {
		return nil, fmt.Errorf("mindfulness: %w", err)
	}
	achievements, err := h.store.AchievementsSince(ctx, u.ID, since)
	if err != nil {
		return nil, fmt.Errorf("achievements: %w", err)
	}
	return wellness.BuildWeeklyReport(h.loc, since, plants, checkins, logs, achievements), nil
}

func (h *Handler) WeeklyReport(c echo.Context) error {
	r, err := h.weeklyReport(c.Request().Context(), user(c))
	if err != nil {
		return h.fail(c, "weekly report", err)
	}
	return h.render(c, "weekly_report.html", M{"Report": r})
}

func (h *Handler) EmailWeeklyReport(c echo.Context) error {
	u := user(c)
	ctx := c.Request().Context()
	r, err := h.weeklyReport(ctx, u)
	if err != nil {
		return h.fail(c, "weekly report", err)
	}
	err = h.mailer.SendWeeklyReport(ctx, u, r)
	switch {
	case errors.Is(err, mail.ErrDisabled):
		return h.flashRedirect(c, middleware.FlashWarning, "Email is not available right now.", "/weekly_report")
	case err != nil:
		h.log.Warn("send weekly report", zap.Int64("user_id", u.ID), zap.Error(err))
		return h.flashRedirect(c, middleware.FlashDanger, "We could not send your report. Please try again later.", "/weekly_report")
	}
	return h.flashRedirect(c, middleware.FlashSuccess, fmt.Sprintf("Your weekly report was sent to %s.", u.Email), "/weekly_report")
}
