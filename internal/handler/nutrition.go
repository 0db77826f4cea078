package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/advisor"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
)

var (
	foodUnits   = []string{"g", "kg", "ml", "l", "pieces", "tbsp", "tsp"}
	itemFieldRe = regexp.MustCompile(`^items-(\d+)-food_name$`)
)

// parseFoodItems reads the items-N-* rows of the add food form, ordered by N.
// Missing indexes are fine. The first invalid row ends parsing with a message.
func parseFoodItems(v url.Values) ([]model.FoodEntry, string) {
	var idx []int
	for k := range v {
		if m := itemFieldRe.FindStringSubmatch(k); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				idx = append(idx, n)
			}
		}
	}
	sort.Ints(idx)

	var out []model.FoodEntry
	for _, i := range idx {
		name := strings.TrimSpace(v.Get(fmt.Sprintf("items-%d-food_name", i)))
		amount := strings.TrimSpace(v.Get(fmt.Sprintf("items-%d-amount", i)))
		unit := strings.TrimSpace(v.Get(fmt.Sprintf("items-%d-unit", i)))
		if name == "" || amount == "" || unit == "" {
			label := name
			if label == "" {
				label = "item"
			}
			return nil, fmt.Sprintf("Please fill in all fields for '%s'", label)
		}
		a, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return nil, fmt.Sprintf("Invalid amount for '%s'. Please enter a valid number.", name)
		}
		if a <= 0 {
			return nil, fmt.Sprintf("Amount for '%s' must be greater than 0.", name)
		}
		if !slices.Contains(foodUnits, unit) {
			return nil, fmt.Sprintf("Please choose a valid unit for '%s'.", name)
		}
		out = append(out, model.FoodEntry{FoodName: name, Amount: a, Unit: unit})
	}
	return out, ""
}

func (h *Handler) AddFood(c echo.Context) error {
	page := M{"Units": foodUnits, "Form": M{}}
	if c.Request().Method == http.MethodGet {
		return h.render(c, "add_food.html", page)
	}

	f := newForm(c)
	start := f.date("start_date", h.loc)
	end := f.date("end_date", h.loc)
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad form")
	}
	page["Form"] = formValues(c, "start_date", "end_date")

	var msg string
	switch {
	case f.Errors["start_date"] != "":
		msg = "Start date error: " + f.Errors["start_date"]
	case f.Errors["end_date"] != "":
		msg = "End date error: " + f.Errors["end_date"]
	case end.Before(start):
		msg = "End date cannot be before start date."
	}
	var entries []model.FoodEntry
	if msg == "" {
		entries, msg = parseFoodItems(params)
		if msg == "" && len(entries) == 0 {
			msg = "Please add at least one food item."
		}
	}
	if msg != "" {
		page["Error"] = msg
		return h.renderStatus(c, http.StatusUnprocessableEntity, "add_food.html", page)
	}
	for i := range entries {
		entries[i].StartDate, entries[i].EndDate = start, end
	}

	ctx := c.Request().Context()
	u := user(c)
	advice, err := h.advisor.Advise(ctx, start, end, entries)
	warning := ""
	if err != nil {
		h.log.Warn("nutrition advice", zap.Int64("user_id", u.ID), zap.Error(err))
		advice, warning = advisor.Fallback(err)
	}

	r := &model.FoodRecord{UserID: u.ID, NutritionAdvice: advice, Entries: entries}
	if err := h.store.CreateFoodRecord(ctx, r); err != nil {
		h.log.Error("save food record", zap.Int64("user_id", u.ID), zap.Error(err))
		page["Error"] = "An error occurred while saving your food entries."
		return h.renderStatus(c, http.StatusInternalServerError, "add_food.html", page)
	}
	if warning != "" {
		middleware.SetFlash(c, middleware.FlashWarning, warning)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "All food entries added successfully!", "/food_record")
}

func (h *Handler) FoodRecords(c echo.Context) error {
	records, err := h.store.FoodRecords(c.Request().Context(), user(c).ID)
	if err != nil {
		return h.fail(c, "list food records", err)
	}
	return h.render(c, "food_record.html", M{"Records": records})
}

func (h *Handler) DeleteFoodRecord(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	r, err := h.store.GetFoodRecord(ctx, id)
	if isNotFound(err) {
		return notFound()
	}
	if err != nil {
		return h.fail(c, "get food record", err)
	}
	if r.UserID != user(c).ID {
		return h.flashRedirect(c, middleware.FlashDanger, "You do not have permission to delete this record.", "/food_record")
	}
	if err := h.store.DeleteFoodRecord(ctx, r.ID, r.UserID); err != nil && !isNotFound(err) {
		h.log.Error("delete food record", zap.Int64("record_id", r.ID), zap.Error(err))
		return h.flashRedirect(c, middleware.FlashDanger, "Error deleting record.", "/food_record")
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "Food record deleted successfully.", "/food_record")
}
