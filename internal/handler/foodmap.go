package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/geo"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

const (
	defaultLocationName    = "Food Pickup Point"
	defaultLocationAddress = "Address not specified"
)

var errInvalidCoordinates = errors.New("invalid coordinates")

type locationRequest struct {
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Description    string   `json:"description"`
	OperatingHours string   `json:"operating_hours"`
	ContactInfo    string   `json:"contact_info"`
	Capacity       string   `json:"capacity"`
	FoodTypes      string   `json:"food_types"`
}

func (r *locationRequest) location(createdBy int64) (model.Location, error) {
	if r.Lat == nil || r.Lng == nil {
		return model.Location{}, errInvalidCoordinates
	}
	p := geo.Point{Lat: *r.Lat, Lng: *r.Lng}
	if !geo.Valid(p) {
		return model.Location{}, errInvalidCoordinates
	}
	return model.Location{
		Latitude:       p.Lat,
		Longitude:      p.Lng,
		Name:           strings.TrimSpace(r.Name),
		Address:        strings.TrimSpace(r.Address),
		Description:    r.Description,
		OperatingHours: r.OperatingHours,
		ContactInfo:    r.ContactInfo,
		Capacity:       r.Capacity,
		FoodTypes:      r.FoodTypes,
		IsActive:       true,
		CreatedBy:      &createdBy,
	}, nil
}

// locationJSON is the public shape of a location; name and address fall back to defaults.
func locationJSON(l *model.Location) M {
	name, addr := l.Name, l.Address
	if name == "" {
		name = defaultLocationName
	}
	if addr == "" {
		addr = defaultLocationAddress
	}
	return M{"id": l.ID, "lat": l.Latitude, "lng": l.Longitude, "name": name, "address": addr}
}

func (h *Handler) FoodMap(c echo.Context) error {
	st, err := h.store.LocationStatistics(c.Request().Context())
	if err != nil {
		return h.fail(c, "location statistics", err)
	}
	return h.render(c, "map.html", M{"IsAdmin": user(c).IsAdmin, "LocationCount": st.Total})
}

func (h *Handler) SaveLocation(c echo.Context) error {
	var req locationRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return jsonFail(c, http.StatusBadRequest, "Invalid coordinates")
	}
	l, err := req.location(user(c).ID)
	if err != nil {
		return jsonFail(c, http.StatusBadRequest, "Invalid coordinates")
	}
	err = h.store.SaveLocation(c.Request().Context(), &l)
	if errors.Is(err, store.ErrDuplicate) {
		return jsonFail(c, http.StatusBadRequest, "A location already exists very close to this point")
	}
	if err != nil {
		h.log.Error("save location", zap.Error(err))
		return jsonFail(c, http.StatusInternalServerError, "Could not save location")
	}
	return c.JSON(http.StatusOK, M{
		"status": "success",
		"location": M{
			"id": l.ID, "lat": l.Latitude, "lng": l.Longitude, "name": l.Name, "address": l.Address,
		},
	})
}

func (h *Handler) GetLocations(c echo.Context) error {
	locs, err := h.store.Locations(c.Request().Context())
	if err != nil {
		h.log.Error("list locations", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Could not load locations")
	}
	out := make([]M, 0, len(locs))
	for i := range locs {
		out = append(out, locationJSON(&locs[i]))
	}
	return c.JSON(http.StatusOK, out)
}

type nearbyRequest struct {
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Radius *float64 `json:"radius"`
}

func points(locs []model.Location) []geo.Point {
	out := make([]geo.Point, len(locs))
	for i, l := range locs {
		out[i] = geo.Point{Lat: l.Latitude, Lng: l.Longitude}
	}
	return out
}

func (h *Handler) NearbyLocations(c echo.Context) error {
	var req nearbyRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.Lat == nil || req.Lng == nil {
		return jsonFail(c, http.StatusBadRequest, "Invalid coordinates")
	}
	radius := geo.DefaultRadiusKm
	if req.Radius != nil {
		radius = *req.Radius
	}
	locs, err := h.store.Locations(c.Request().Context())
	if err != nil {
		h.log.Error("list locations", zap.Error(err))
		return jsonFail(c, http.StatusInternalServerError, "Could not load locations")
	}

	ranked := geo.Within(geo.Point{Lat: *req.Lat, Lng: *req.Lng}, points(locs), radius)
	out := make([]M, 0, len(ranked))
	for _, r := range ranked {
		m := locationJSON(&locs[r.Index])
		m["distance"] = geo.Round2(r.Km)
		out = append(out, m)
	}
	return c.JSON(http.StatusOK, M{"status": "success", "locations": out, "total": len(out)})
}

func (h *Handler) DeleteLocation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return jsonFail(c, http.StatusNotFound, "Location not found")
	}
	l, err := h.store.DeleteLocation(c.Request().Context(), id)
	if isNotFound(err) {
		return jsonFail(c, http.StatusNotFound, "Location not found")
	}
	if err != nil {
		h.log.Error("delete location", zap.Int64("location_id", id), zap.Error(err))
		return jsonFail(c, http.StatusInternalServerError, "Could not delete location")
	}
	h.log.Info("location deleted", zap.Int64("location_id", l.ID), zap.String("name", l.Name),
		zap.Int64("user_id", user(c).ID))
	return c.JSON(http.StatusOK, M{"status": "success", "message": "Location deleted successfully"})
}

type bulkRequest struct {
	Locations []json.RawMessage `json:"locations"`
}

// parseBulk decodes each location separately so one bad entry does not sink the batch.
func parseBulk(raw []json.RawMessage, createdBy int64) ([]model.Location, []string) {
	var (
		locs   []model.Location
		errs   []string
		failed = func(i int, err error) {
			errs = append(errs, fmt.Sprintf("Error processing location %d: %v", i+1, err))
		}
	)
	for i, r := range raw {
		var req locationRequest
		if err := json.Unmarshal(r, &req); err != nil {
			failed(i, err)
			continue
		}
		l, err := req.location(createdBy)
		if err != nil {
			failed(i, err)
			continue
		}
		locs = append(locs, l)
	}
	return locs, errs
}

func (h *Handler) BulkUpload(c echo.Context) error {
	var req bulkRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || len(req.Locations) == 0 {
		return jsonFail(c, http.StatusBadRequest, "No locations provided")
	}
	locs, invalid := parseBulk(req.Locations, user(c).ID)
	res, err := h.store.BulkSaveLocations(c.Request().Context(), locs, invalid)
	if err != nil {
		h.log.Error("bulk upload", zap.Int("count", len(locs)), zap.Error(err))
		return jsonFail(c, http.StatusInternalServerError, "Could not save locations")
	}
	h.log.Info("locations uploaded", zap.Int("added", res.Added), zap.Int("skipped", res.Skipped))
	return c.JSON(http.StatusOK, M{
		"status":  "success",
		"added":   res.Added,
		"skipped": res.Skipped,
		"errors":  res.Errors,
	})
}

func (h *Handler) LocationStatistics(c echo.Context) error {
	st, err := h.store.LocationStatistics(c.Request().Context())
	if err != nil {
		h.log.Error("location statistics", zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Could not load statistics")
	}
	var recent any
	if st.MostRecent != nil {
		recent = M{"name": st.MostRecent.Name, "address": st.MostRecent.Address}
	}
	return c.JSON(http.StatusOK, M{
		"total_locations":       st.Total,
		"active_locations":      st.Active,
		"locations_added_today": st.AddedToday,
		"most_recent_location":  recent,
	})
}

type searchRequest struct {
	Keyword string   `json:"keyword"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Radius  *float64 `json:"radius"`
}

func (h *Handler) SearchLocations(c echo.Context) error {
	var req searchRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return jsonFail(c, http.StatusBadRequest, "Invalid search")
	}
	keyword := strings.TrimSpace(req.Keyword)
	locs, err := h.store.SearchLocations(c.Request().Context(), keyword)
	if err != nil {
		h.log.Error("search locations", zap.String("keyword", keyword), zap.Error(err))
		return jsonFail(c, http.StatusInternalServerError, "Search failed")
	}

	out := make([]M, 0, len(locs))
	detailed := func(l *model.Location) M {
		m := locationJSON(l)
		m["food_types"] = l.FoodTypes
		m["operating_hours"] = l.OperatingHours
		return m
	}
	if req.Lat != nil && req.Lng != nil {
		radius := -1.0
		if req.Radius != nil {
			radius = *req.Radius
		}
		origin := geo.Point{Lat: *req.Lat, Lng: *req.Lng}
		all := geo.Within(origin, points(locs), maxRadius(radius))
		for _, r := range all {
			m := detailed(&locs[r.Index])
			m["distance"] = geo.Round2(r.Km)
			out = append(out, m)
		}
	} else {
		for i := range locs {
			out = append(out, detailed(&locs[i]))
		}
	}
	return c.JSON(http.StatusOK, M{"status": "success", "locations": out, "total": len(out), "keyword": keyword})
}

// maxRadius treats a negative radius as unbounded.
func maxRadius(km float64) float64 {
	if km < 0 {
		return geo.EarthRadiusKm * 4
	}
	return km
}

func (h *Handler) Autocomplete(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if len([]rune(q)) < 2 {
		return c.JSON(http.StatusOK, []M{})
	}
	locs, err := h.store.LocationSuggestions(c.Request().Context(), q, 10)
	if err != nil {
		h.log.Error("autocomplete", zap.String("q", q), zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "Could not load suggestions")
	}
	out := make([]M, 0, len(locs))
	for _, l := range locs {
		out = append(out, M{"id": l.ID, "name": l.Name, "address": l.Address})
	}
	return c.JSON(http.StatusOK, out)
}
