package handler

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
	"grandbridge/internal/wellness"
)

var intentions = []string{"self care", "helped", "overcame", "grateful", "rest", "connection"}

func (h *Handler) Planting(c echo.Context) error {
	u := user(c)
	choices := make([]wellness.Vegetable, 0, len(u.UnlockedVegetables))
	for _, k := range u.UnlockedVegetables {
		choices = append(choices, wellness.VegetableInfo(k))
	}
	page := M{
		"Choices":     choices,
		"Intentions":  intentions,
		"Affirmation": wellness.Pick(wellness.Affirmations),
		"Prompt":      wellness.Pick(wellness.JournalPrompts),
	}
	if c.Request().Method == http.MethodGet {
		page["Form"] = M{}
		return h.render(c, "planting.html", page)
	}

	f := newForm(c)
	name := f.length("name", 2, 50)
	typ := f.required("type")
	if typ != "" && !slices.Contains(u.UnlockedVegetables, typ) {
		f.fail("type", "Not a valid choice.")
	}
	note := f.maxLength("note", 500)
	intention := f.get("intention")
	if intention != "" && !slices.Contains(intentions, intention) {
		f.fail("intention", "Not a valid choice.")
	}
	mood := f.rating("mood")
	if !f.valid() {
		page["Form"] = formValues(c, "name", "type", "note", "intention", "mood")
		page["Errors"] = f.Errors
		return h.render(c, "planting.html", page)
	}

	v := &model.Vegetable{
		UserID:      u.ID,
		Name:        name,
		Type:        typ,
		SeedImage:   "pics/seed.png",
		SproutImage: "pics/sprout.png",
		HarvestImg:  "pics/harvest.png",
		Note:        note,
		Intention:   intention,
		MoodBefore:  mood,
	}
	if err := h.store.CreateVegetable(c.Request().Context(), v); err != nil {
		return h.fail(c, "create vegetable", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "Time to breathe life into your plant! 🌱",
		fmt.Sprintf("/plant_breathe/%d", v.ID))
}

// ownVegetable loads a vegetable owned by the current user, 403 for anyone else.
func (h *Handler) ownVegetable(c echo.Context) (*model.Vegetable, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}
	v, err := h.store.GetVegetable(c.Request().Context(), id)
	if isNotFound(err) {
		return nil, notFound()
	}
	if err != nil {
		return nil, h.fail(c, "get vegetable", err)
	}
	if v.UserID != user(c).ID {
		return nil, forbidden()
	}
	return v, nil
}

func (h *Handler) PlantBreathe(c echo.Context) error {
	v, err := h.ownVegetable(c)
	if err != nil {
		return err
	}
	if v.Harvested {
		return h.flashRedirect(c, middleware.FlashWarning, "This plant has already been harvested!",
			fmt.Sprintf("/plant/%d", v.ID))
	}
	return h.render(c, "plant_breathe.html", M{"Vegetable": v, "Info": wellness.VegetableInfo(v.Type)})
}

type growRequest struct {
	Phase string `json:"phase"`
}

func (h *Handler) GrowWithBreath(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	u := user(c)
	v, err := h.store.GetVegetable(ctx, id)
	if isNotFound(err) {
		return jsonError(c, http.StatusNotFound, "Not found")
	}
	if err != nil {
		return h.fail(c, "get vegetable", err)
	}
	if v.UserID != u.ID {
		return jsonError(c, http.StatusForbidden, "Unauthorized")
	}

	var req growRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request")
	}

	advance := func(from, to, msg string) error {
		ok, err := h.store.AdvanceStage(ctx, v.ID, from, to)
		if err != nil {
			return h.fail(c, "advance stage", err)
		}
		if !ok {
			msg = "Keep breathing..."
		} else {
			v.Stage = to
		}
		return c.JSON(http.StatusOK, M{"success": true, "stage": v.Stage, "message": msg, "harvested": false})
	}

	switch req.Phase {
	case "cycle_1_complete":
		return advance(model.StageSeed, model.StageSprout, "Your seed is sprouting with your breath! 🌱")
	case "cycle_2_complete":
		return advance(model.StageSprout, model.StageReady, "Your plant is growing strong! 🌿")
	case "exercise_complete":
		res, err := h.store.Harvest(ctx, u.ID, v.ID, h.now())
		if errors.Is(err, store.ErrAlreadyHarvested) {
			return jsonError(c, http.StatusBadRequest, "This plant has already been harvested!")
		}
		if err != nil {
			return h.fail(c, "harvest", err)
		}
		unlocked := make([]M, 0, len(res.Unlocked))
		for _, a := range res.Unlocked {
			unlocked = append(unlocked, M{"name": a.Name, "description": a.Description})
		}
		h.log.Info("vegetable harvested", zap.Int64("user_id", u.ID), zap.Int64("vegetable_id", v.ID),
			zap.Int("achievements", len(unlocked)))
		return c.JSON(http.StatusOK, M{
			"success":      true,
			"stage":        model.StageHarvest,
			"message":      "Harvest complete! Your mindful breathing has nurtured this plant to perfection! 🌾✨",
			"harvested":    true,
			"coins_earned": wellness.HarvestCoins,
			"total_coins":  res.Coins,
			"achievements": unlocked,
		})
	}
	return c.JSON(http.StatusOK, M{"success": true, "stage": v.Stage, "message": "Keep breathing...", "harvested": v.Harvested})
}

type moodRequest struct {
	MoodAfter *int `json:"mood_after"`
}

func (h *Handler) UpdateMoodAfter(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.store.GetVegetable(ctx, id)
	if isNotFound(err) {
		return jsonError(c, http.StatusNotFound, "Not found")
	}
	if err != nil {
		return h.fail(c, "get vegetable", err)
	}
	if v.UserID != user(c).ID {
		return jsonError(c, http.StatusForbidden, "Unauthorized")
	}

	var req moodRequest
	if err := c.Bind(&req); err != nil || req.MoodAfter == nil || *req.MoodAfter == 0 {
		return jsonError(c, http.StatusBadRequest, "No mood provided")
	}
	mood := max(1, min(5, *req.MoodAfter))
	if err := h.store.SetMoodAfter(ctx, v.ID, mood); err != nil {
		return h.fail(c, "set mood", err)
	}
	change := 0
	if v.MoodBefore != nil {
		change = mood - *v.MoodBefore
	}
	return c.JSON(http.StatusOK, M{"success": true, "mood_after": mood, "mood_change": change})
}

func (h *Handler) CompleteMindfulness(c echo.Context) error {
	a, ok := wellness.LookupActivity(c.Param("type"), c.Param("id"))
	if !ok {
		return h.flashRedirect(c, middleware.FlashDanger, "Activity not found", "/wellness_dashboard")
	}
	u, err := h.store.CompleteActivity(c.Request().Context(), user(c).ID, a, h.now())
	if err != nil {
		return h.fail(c, "complete activity", err)
	}
	middleware.SetFlash(c, middleware.FlashSuccess, fmt.Sprintf("Well done! You earned %d coins! 🎉", a.Coins))
	if u.MindfulnessStreak == 3 {
		middleware.SetFlash(c, middleware.FlashSuccess, "Achievement Unlocked: 3-Day Mindfulness Streak! 🏆")
	}
	return h.redirect(c, "/wellness_dashboard")
}

func (h *Handler) WellnessDashboard(c echo.Context) error {
	u := user(c)
	ctx := c.Request().Context()
	plants, err := h.store.Vegetables(ctx, u.ID, false, 3)
	if err != nil {
		return h.fail(c, "recent plants", err)
	}
	logs, err := h.store.RecentMindfulness(ctx, u.ID, 3)
	if err != nil {
		return h.fail(c, "recent mindfulness", err)
	}
	return h.render(c, "wellness_dashboard.html", M{
		"Score":      wellness.DashboardScore(u.Streak, u.MindfulnessStreak, u.TotalMindfulMinutes),
		"Plants":     plants,
		"Mindful":    logs,
		"Activities": []wellness.Activity{mustActivity("breathing", "478")},
	})
}

func mustActivity(typ, id string) wellness.Activity {
	a, ok := wellness.LookupActivity(typ, id)
	if !ok {
		panic("unknown activity " + typ + "/" + id)
	}
	return a
}

func (h *Handler) Unlock(c echo.Context) error {
	u := user(c)
	if c.Request().Method == http.MethodPost {
		key := c.FormValue("vegetable")
		if !wellness.IsVegetable(key) {
			return h.flashRedirect(c, middleware.FlashDanger, "Unknown vegetable.", "/unlock")
		}
		_, err := h.store.Unlock(c.Request().Context(), u.ID, key)
		switch {
		case errors.Is(err, store.ErrNotEnoughCoins):
			return h.flashRedirect(c, middleware.FlashDanger, "Not enough coins!", "/unlock")
		case errors.Is(err, store.ErrAlreadyUnlocked):
			return h.flashRedirect(c, middleware.FlashInfo, "You already have that vegetable.", "/unlock")
		case err != nil:
			return h.fail(c, "unlock vegetable", err)
		}
		return h.flashRedirect(c, middleware.FlashSuccess,
			fmt.Sprintf("You've unlocked %s!", wellness.VegetableInfo(key).Name), "/unlock")
	}
	return h.render(c, "unlock.html", M{"Locked": wellness.Locked(u.UnlockedVegetables), "Cost": wellness.UnlockCost})
}

func (h *Handler) Plant(c echo.Context) error {
	v, err := h.ownVegetable(c)
	if err != nil {
		return err
	}
	if !v.Harvested {
		return h.redirect(c, fmt.Sprintf("/plant_breathe/%d", v.ID))
	}
	return h.render(c, "vegetable_complete.html", M{"Vegetable": v, "Info": wellness.VegetableInfo(v.Type)})
}

func (h *Handler) AllVegetables(c echo.Context) error {
	vs, err := h.store.Vegetables(c.Request().Context(), user(c).ID, false, 0)
	if err != nil {
		return h.fail(c, "list vegetables", err)
	}
	return h.render(c, "all_vegetables.html", M{"Vegetables": vs})
}

func (h *Handler) Guide(c echo.Context) error {
	all := make([]wellness.Vegetable, 0, len(wellness.AllVegetables))
	for _, k := range wellness.AllVegetables {
		all = append(all, wellness.VegetableInfo(k))
	}
	return h.render(c, "guide.html", M{"Catalog": all, "Cost": wellness.UnlockCost})
}

func (h *Handler) GloryHall(c echo.Context) error {
	as, err := h.store.Achievements(c.Request().Context(), user(c).ID)
	if err != nil {
		return h.fail(c, "list achievements", err)
	}
	return h.render(c, "glory_hall.html", M{"Achievements": as})
}
