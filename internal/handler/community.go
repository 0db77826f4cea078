package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
)

func (h *Handler) Support(c echo.Context) error {
	staff, err := h.store.StaffList(c.Request().Context())
	if err != nil {
		return h.fail(c, "list staff", err)
	}
	return h.render(c, "support.html", M{"Staff": staff})
}

func (h *Handler) AddStaff(c echo.Context) error {
	if !user(c).IsAdmin {
		return h.flashRedirect(c, middleware.FlashDanger, "You cannot add new staff", "/support")
	}
	if c.Request().Method == http.MethodGet {
		return h.render(c, "add_staff.html", M{"Form": M{}})
	}

	f := newForm(c)
	m := &model.Staff{
		Name:         f.length("name", 1, 100),
		Organisation: f.length("organisation", 1, 100),
		Tel:          f.length("tel", 1, 20),
		Email:        f.email("email"),
		Intro:        f.maxLength("intro", 1000),
	}
	if !f.valid() {
		return h.render(c, "add_staff.html", M{
			"Form":   formValues(c, "name", "organisation", "tel", "email", "intro"),
			"Errors": f.Errors,
		})
	}
	if err := h.store.CreateStaff(c.Request().Context(), m); err != nil {
		return h.fail(c, "create staff", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, "Staff added", "/support")
}
