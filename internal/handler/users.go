package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/auth"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

func (h *Handler) Register(c echo.Context) error {
	if user(c) != nil {
		return h.redirect(c, "/home")
	}
	if c.Request().Method == http.MethodGet {
		return h.render(c, "register.html", M{"Form": M{}})
	}

	f := newForm(c)
	username := f.length("username", 2, 20)
	email := f.email("email")
	password := f.required("password")
	if confirm := f.required("confirm_password"); password != "" && confirm != password {
		f.fail("confirm_password", "Field must be equal to password.")
	}
	familyID := f.optionalID("family_id")
	isAdmin := f.get("is_admin") == "true"

	ctx := c.Request().Context()
	if email != "" {
		taken, err := h.store.EmailTaken(ctx, email, 0)
		if err != nil {
			return h.fail(c, "check email", err)
		}
		if taken {
			f.fail("email", "That email is taken. Please choose a different one.")
		}
	}
	if !f.valid() {
		return h.render(c, "register.html", M{"Form": formValues(c, "username", "email", "family_id", "is_admin"), "Errors": f.Errors})
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return h.fail(c, "hash password", err)
	}
	u := &model.User{Username: username, Email: email, PasswordHash: hash, IsAdmin: isAdmin}
	if err := h.store.RegisterUser(ctx, u, familyID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			f.fail("email", "That email is taken. Please choose a different one.")
			return h.render(c, "register.html", M{"Form": formValues(c, "username", "email", "family_id", "is_admin"), "Errors": f.Errors})
		}
		return h.fail(c, "register user", err)
	}
	h.log.Info("user registered", zap.Int64("user_id", u.ID), zap.Bool("admin", u.IsAdmin))
	return h.flashRedirect(c, middleware.FlashSuccess, "Your account has been created!", "/login")
}

func formValues(c echo.Context, names ...string) M {
	out := M{}
	for _, n := range names {
		out[n] = strings.TrimSpace(c.FormValue(n))
	}
	return out
}

func (h *Handler) Login(c echo.Context) error {
	if user(c) != nil {
		return h.redirect(c, "/home")
	}
	next := safeNext(c.QueryParam("next"))
	if c.Request().Method == http.MethodGet {
		return h.render(c, "login.html", M{"Next": next})
	}

	f := newForm(c)
	email := f.email("email")
	password := f.required("password")
	if !f.valid() {
		return h.render(c, "login.html", M{"Next": next, "Email": email, "Errors": f.Errors})
	}

	ctx := c.Request().Context()
	u, err := h.store.UserByEmail(ctx, email)
	if err != nil && !isNotFound(err) {
		return h.fail(c, "load user", err)
	}
	if u == nil || !auth.CheckPassword(u.PasswordHash, password) {
		middleware.SetFlash(c, middleware.FlashDanger, "Login Unsuccessful. Please check email and password.")
		return h.render(c, "login.html", M{"Next": next, "Email": email})
	}

	if err := h.sessions.Issue(c, u.ID, f.checked("remember")); err != nil {
		return h.fail(c, "issue session", err)
	}
	middleware.SetFlash(c, middleware.FlashSuccess, "Login Successful!")
	if next == "" {
		next = "/home"
	}
	return h.redirect(c, next)
}

func (h *Handler) Logout(c echo.Context) error {
	if u := user(c); u != nil {
		if err := h.sessions.End(c, u.ID); err != nil {
			return h.fail(c, "end session", err)
		}
	} else {
		h.sessions.Clear(c)
	}
	return h.flashRedirect(c, middleware.FlashInfo, "You have logged out.", "/")
}

// Refresh exchanges the refresh cookie for a new cookie pair.
func (h *Handler) Refresh(c echo.Context) error {
	uid, err := h.sessions.Refresh(c)
	if errors.Is(err, middleware.ErrNoSession) {
		return jsonError(c, http.StatusUnauthorized, "invalid refresh token")
	}
	if err != nil {
		return h.fail(c, "refresh session", err)
	}
	return c.JSON(http.StatusOK, M{"user_id": uid})
}

func (h *Handler) Account(c echo.Context) error {
	u := user(c)
	ctx := c.Request().Context()

	if c.Request().Method == http.MethodPost {
		f := newForm(c)
		username := f.length("username", 2, 20)
		email := f.email("email")
		var familyID *int64
		if !u.IsAdmin {
			familyID = f.optionalID("family_id")
		}
		if email != "" && !strings.EqualFold(email, u.Email) {
			taken, err := h.store.EmailTaken(ctx, email, u.ID)
			if err != nil {
				return h.fail(c, "check email", err)
			}
			if taken {
				f.fail("email", "That email is taken. Please choose a different one.")
			}
		}
		if f.valid() {
			upd := *u
			upd.Username, upd.Email = username, email
			if !u.IsAdmin {
				upd.Address = f.get("address")
				upd.ContactInfo = f.get("contact_info")
			}
			err := h.store.UpdateAccount(ctx, &upd, familyID)
			switch {
			case isNotFound(err):
				return h.flashRedirect(c, middleware.FlashDanger, fmt.Sprintf(
					"No family found with ID %d. Leave Family ID blank to create a new family with your username.", *familyID), "/account")
			case errors.Is(err, store.ErrDuplicate):
				f.fail("email", "That email is taken. Please choose a different one.")
			case err != nil:
				return h.fail(c, "update account", err)
			default:
				if !upd.IsAdmin && upd.FamilyID != nil {
					if fam, err := h.store.FamilyByID(ctx, *upd.FamilyID); err == nil {
						if familyID != nil {
							middleware.SetFlash(c, middleware.FlashSuccess, fmt.Sprintf("You have joined family '%s' (ID: %d).", fam.Name, fam.ID))
						} else {
							middleware.SetFlash(c, middleware.FlashSuccess, fmt.Sprintf("New family '%s' created with ID %d. You are now a member!", fam.Name, fam.ID))
						}
					}
				}
				return h.flashRedirect(c, middleware.FlashSuccess, "Your account has been updated!", "/account")
			}
		}
		return h.render(c, "account.html", M{
			"Form":   formValues(c, "username", "email", "family_id", "address", "contact_info"),
			"Errors": f.Errors,
		})
	}

	form := M{"username": u.Username, "email": u.Email, "address": u.Address, "contact_info": u.ContactInfo}
	if u.FamilyID != nil {
		form["family_id"] = *u.FamilyID
	}
	data := M{"Form": form}
	if !u.IsAdmin && u.FamilyID != nil {
		fam, err := h.store.FamilyByID(ctx, *u.FamilyID)
		if err != nil && !isNotFound(err) {
			return h.fail(c, "load family", err)
		}
		if fam != nil {
			members, err := h.store.FamilyMembers(ctx, fam.ID)
			if err != nil {
				return h.fail(c, "load members", err)
			}
			admins, err := h.store.FamilyAdmins(ctx, fam.ID)
			if err != nil {
				return h.fail(c, "load admins", err)
			}
			data["FamilyInfo"] = M{"Family": fam, "Members": members, "Admins": admins}
		}
	}
	return h.render(c, "account.html", data)
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	u := user(c)
	h.sessions.Clear(c)
	if err := h.store.DeleteUser(c.Request().Context(), u.ID); err != nil && !isNotFound(err) {
		return h.fail(c, "delete user", err)
	}
	h.log.Info("user deleted", zap.Int64("user_id", u.ID))
	return h.flashRedirect(c, middleware.FlashSuccess, "Your account has been deleted.", "/login")
}

func (h *Handler) CreateFamily(c echo.Context) error {
	if c.Request().Method == http.MethodGet {
		return h.render(c, "create_family.html", M{"Form": M{}})
	}
	u := user(c)
	ctx := c.Request().Context()

	f := newForm(c)
	id := f.optionalID("id")
	var name string
	if id == nil {
		name = f.length("name", 2, 50)
	} else {
		name = f.maxLength("name", 50)
	}
	if !f.valid() {
		return h.render(c, "create_family.html", M{"Form": formValues(c, "id", "name"), "Errors": f.Errors})
	}

	if id != nil {
		added, err := h.store.JoinFamilyAsAdmin(ctx, u.ID, *id)
		if isNotFound(err) {
			return h.flashRedirect(c, middleware.FlashDanger,
				fmt.Sprintf("No family found with ID %d. Leave ID blank to create a new family.", *id), "/create_family")
		}
		if err != nil {
			return h.fail(c, "join family", err)
		}
		if added {
			middleware.SetFlash(c, middleware.FlashSuccess, fmt.Sprintf(
				"You have been added as an admin for existing family (ID: %d) You may change its name on this page.", *id))
		} else {
			fam, err := h.store.FamilyByID(ctx, *id)
			if err != nil {
				return h.fail(c, "load family", err)
			}
			middleware.SetFlash(c, middleware.FlashInfo, fmt.Sprintf(
				"You are already an admin for family '%s' (ID: %d). You may update its name on 'All Families' Page.", fam.Name, fam.ID))
		}
		return h.redirect(c, "/all_families")
	}

	fam, err := h.store.CreateManagedFamily(ctx, u.ID, name)
	if err != nil {
		return h.fail(c, "create family", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess,
		fmt.Sprintf("New family '%s' created with ID %d. You are its admin!", fam.Name, fam.ID), "/all_families")
}

func (h *Handler) EditFamily(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	u := user(c)
	ctx := c.Request().Context()

	fam, err := h.store.FamilyByID(ctx, id)
	if isNotFound(err) {
		return notFound()
	}
	if err != nil {
		return h.fail(c, "load family", err)
	}
	ok, err := h.store.IsFamilyAdmin(ctx, u.ID, id)
	if err != nil {
		return h.fail(c, "check family admin", err)
	}
	if !ok {
		return h.flashRedirect(c, middleware.FlashDanger, "You do not have permission to edit this family.", "/home")
	}

	if c.Request().Method == http.MethodGet {
		return h.render(c, "edit_family.html", M{"Family": fam, "Form": M{"name": fam.Name}})
	}
	f := newForm(c)
	name := f.length("name", 2, 50)
	if !f.valid() {
		return h.render(c, "edit_family.html", M{"Family": fam, "Form": formValues(c, "name"), "Errors": f.Errors})
	}
	if err := h.store.RenameFamily(ctx, id, name); err != nil {
		return h.fail(c, "rename family", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, fmt.Sprintf("Family '%s' updated successfully!", name), "/all_families")
}

func (h *Handler) RemoveAdmin(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	fam, err := h.store.FamilyByID(ctx, id)
	if isNotFound(err) {
		return notFound()
	}
	if err != nil {
		return h.fail(c, "load family", err)
	}
	err = h.store.RemoveFamilyAdmin(ctx, user(c).ID, id)
	if isNotFound(err) {
		return h.flashRedirect(c, middleware.FlashDanger,
			"You do not have permission to remove yourself as an admin from this family.", "/home")
	}
	if err != nil {
		return h.fail(c, "remove admin", err)
	}
	return h.flashRedirect(c, middleware.FlashSuccess, fmt.Sprintf("You are no longer an admin for '%s'.", fam.Name), "/all_families")
}

func (h *Handler) AllFamilies(c echo.Context) error {
	families, err := h.store.AdminFamilies(c.Request().Context(), user(c).ID)
	if err != nil {
		return h.fail(c, "list families", err)
	}
	return h.render(c, "all_families.html", M{"Families": families})
}
