package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/advisor"
	"grandbridge/internal/cache"
	"grandbridge/internal/calendar"
	"grandbridge/internal/chat"
	"grandbridge/internal/config"
	"grandbridge/internal/mail"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
	"grandbridge/internal/store"
)

// Deps are the collaborators a Handler is built from. Google, Advisor and
// Mailer may be nil when the integration is not configured.
type Deps struct {
	Store    *store.Store
	Config   *config.Config
	Log      *zap.Logger
	Sessions *middleware.Sessions
	Limiter  *middleware.RateLimiter
	Cache    *cache.Cache
	ICS      *calendar.ICS
	Google   *calendar.Google
	Advisor  advisor.Advisor
	Mailer   mail.Mailer
	Hub      *chat.Hub
}

type Handler struct {
	store    *store.Store
	cfg      *config.Config
	log      *zap.Logger
	sessions *middleware.Sessions
	limiter  *middleware.RateLimiter
	ics      *calendar.ICS
	google   *calendar.Google
	advisor  advisor.Advisor
	mailer   mail.Mailer
	hub      *chat.Hub
	loc      *time.Location
}

func New(d Deps) *Handler {
	h := &Handler{
		store:    d.Store,
		cfg:      d.Config,
		log:      d.Log,
		sessions: d.Sessions,
		limiter:  d.Limiter,
		ics:      d.ICS,
		google:   d.Google,
		advisor:  d.Advisor,
		mailer:   d.Mailer,
		hub:      d.Hub,
		loc:      d.Config.Location(),
	}
	if h.advisor == nil {
		h.advisor = advisor.Disabled{}
	}
	if h.mailer == nil {
		h.mailer = mail.Disabled{}
	}
	if h.ics == nil {
		h.ics = calendar.NewICS(nil, d.Cache, d.Config.CacheTTL)
	}
	return h
}

// M is the data passed to templates.
type M map[string]any

func (h *Handler) now() time.Time { return time.Now().In(h.loc) }

func (h *Handler) today() time.Time { return model.DateOf(h.now()) }

func (h *Handler) render(c echo.Context, name string, data M) error {
	return h.renderStatus(c, http.StatusOK, name, data)
}

func (h *Handler) renderStatus(c echo.Context, status int, name string, data M) error {
	if data == nil {
		data = M{}
	}
	data["User"] = middleware.CurrentUser(c)
	data["Flashes"] = middleware.Flashes(c)
	data["GoogleEnabled"] = h.google != nil
	return c.Render(status, name, data)
}

func (h *Handler) redirect(c echo.Context, to string) error {
	return c.Redirect(http.StatusSeeOther, to)
}

func (h *Handler) flashRedirect(c echo.Context, kind, msg, to string) error {
	middleware.SetFlash(c, kind, msg)
	return h.redirect(c, to)
}

// fail logs an unexpected error and hands a plain 500 to echo's error handler.
func (h *Handler) fail(c echo.Context, what string, err error) error {
	h.log.Error(what, zap.Error(err), zap.String("path", c.Request().URL.Path))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

// jsonFail is the error shape of the JSON endpoints.
func jsonFail(c echo.Context, status int, msg string) error {
	return c.JSON(status, M{"status": "failed", "message": msg})
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, M{"error": msg})
}

func user(c echo.Context) *model.User { return middleware.CurrentUser(c) }

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return id, nil
}

func notFound() error { return echo.NewHTTPError(http.StatusNotFound, "not found") }

func forbidden() error { return echo.NewHTTPError(http.StatusForbidden, "forbidden") }

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

// Routes wires every page and endpoint onto e.
func (h *Handler) Routes(e *echo.Echo) {
	e.Use(h.sessions.Load)

	login := middleware.RequireLogin
	admin := []echo.MiddlewareFunc{middleware.RequireLogin, middleware.RequireAdmin}
	both := []string{http.MethodGet, http.MethodPost}

	// main
	e.GET("/", h.Home)
	e.GET("/home", h.Home)
	e.GET("/healthz", h.Health)

	// users
	e.Match(both, "/register", h.Register, h.limiter.Limit)
	e.Match(both, "/login", h.Login, h.limiter.Limit)
	e.GET("/logout", h.Logout)
	e.POST("/auth/refresh", h.Refresh)
	e.Match(both, "/account", h.Account, login)
	e.POST("/account/delete", h.DeleteAccount, login)
	e.Match(both, "/create_family", h.CreateFamily, admin...)
	e.Match(both, "/edit_family/:id", h.EditFamily, admin...)
	e.POST("/remove_admin/:id", h.RemoveAdmin, admin...)
	e.GET("/all_families", h.AllFamilies, admin...)

	// calendar
	e.GET("/events", h.Events, login)
	e.Match(both, "/events/new", h.NewEvent, admin...)
	e.GET("/event/:id", h.Event, login)
	e.Match(both, "/event/:id/edit", h.EditEvent, admin...)
	e.POST("/event/:id/delete", h.DeleteEvent, admin...)
	e.GET("/calendar", h.Calendar, login)
	e.GET("/calendar/subscribe", h.Subscribe, login)
	e.GET("/google_login", h.GoogleLogin, login)
	e.GET("/callback", h.GoogleCallback, login)
	e.GET("/google_logout", h.GoogleLogout, login)
	e.GET("/google_event/:id", h.GoogleEvent, login)
	e.POST("/google_event/:id/delete", h.DeleteGoogleEvent, login)
	e.Match(both, "/google_event/:id/edit", h.EditGoogleEvent, login)

	// planting and wellness
	e.Match(both, "/planting", h.Planting, login)
	e.GET("/plant_breathe/:id", h.PlantBreathe, login)
	e.POST("/grow_with_breath/:id", h.GrowWithBreath, login)
	e.POST("/update_mood_after/:id", h.UpdateMoodAfter, login)
	e.POST("/complete_mindfulness/:type/:id", h.CompleteMindfulness, login)
	e.GET("/wellness_dashboard", h.WellnessDashboard, login)
	e.Match(both, "/daily_checkin", h.DailyCheckIn, login)
	e.GET("/checkin/history", h.CheckInHistory, login)
	e.GET("/checkin/:id", h.CheckIn, login)
	e.GET("/weekly_report", h.WeeklyReport, login)
	e.POST("/weekly_report/email", h.EmailWeeklyReport, login)
	e.Match(both, "/unlock", h.Unlock, login)
	e.GET("/plant/all_vegetables", h.AllVegetables, login)
	e.GET("/plant/guide", h.Guide)
	e.GET("/plant/:id", h.Plant, login)
	e.GET("/glory_hall", h.GloryHall, login)

	// nutrition
	e.Match(both, "/add_food", h.AddFood, login)
	e.GET("/food_record", h.FoodRecords, login)
	e.POST("/delete_record/:id", h.DeleteFoodRecord, login)

	// foodmap
	e.GET("/foodmap", h.FoodMap, login)
	e.POST("/foodmap/save_location", h.SaveLocation, admin...)
	e.GET("/foodmap/get_locations", h.GetLocations, login)
	e.POST("/foodmap/get_nearby_locations", h.NearbyLocations, login)
	e.DELETE("/foodmap/delete_location/:id", h.DeleteLocation, admin...)
	e.POST("/foodmap/bulk_upload", h.BulkUpload, admin...)
	e.GET("/foodmap/statistics", h.LocationStatistics, login)
	e.POST("/foodmap/search_locations", h.SearchLocations, login)
	e.GET("/foodmap/autocomplete", h.Autocomplete, login)

	// memory
	e.GET("/memory", h.Memories, login)
	e.Match(both, "/memories_wall/upload", h.UploadMemory, login)
	e.GET("/uploads/:name", h.ServeUpload, login)

	// community
	e.GET("/support", h.Support, login)
	e.Match(both, "/support/add_staff", h.AddStaff, login)

	// chatroom
	e.POST("/event/:id/participate", h.Participate, login)
	e.GET("/event/:id/chat", h.Chat, login)
	e.POST("/event/:id/chat/send", h.SendMessage, login)
	e.GET("/event/:id/chat/messages", h.Messages, login)
	e.GET("/event/:id/chat/ws", h.ChatSocket, login)
	e.GET("/event/:id/participants", h.Participants, login)
}
