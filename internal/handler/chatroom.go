package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"grandbridge/internal/chat"
	"grandbridge/internal/middleware"
	"grandbridge/internal/model"
)

const (
	chatHistory = 100
	chatPoll    = 50
)

func (h *Handler) Participate(c echo.Context) error {
	e, _, err := h.visibleEvent(c)
	if err != nil {
		return err
	}
	joined, err := h.store.ToggleParticipation(c.Request().Context(), e.ID, user(c).ID)
	if err != nil {
		return h.fail(c, "toggle participation", err)
	}
	back := fmt.Sprintf("/event/%d", e.ID)
	if joined {
		return h.flashRedirect(c, middleware.FlashSuccess, "You are now participating in this event!", back)
	}
	return h.flashRedirect(c, middleware.FlashInfo, "You have left the event.", back)
}

// participantEvent loads a visible event and reports whether the user has joined it.
func (h *Handler) participantEvent(c echo.Context) (*model.Event, bool, error) {
	e, _, err := h.visibleEvent(c)
	if err != nil {
		return nil, false, err
	}
	ok, err := h.store.IsParticipant(c.Request().Context(), e.ID, user(c).ID)
	if err != nil {
		return nil, false, h.fail(c, "check participant", err)
	}
	return e, ok, nil
}

func (h *Handler) messages(ms []model.ChatMessage) []chat.Message {
	out := make([]chat.Message, 0, len(ms))
	for _, m := range ms {
		out = append(out, chat.FromModel(m, h.loc))
	}
	return out
}

func (h *Handler) Chat(c echo.Context) error {
	e, ok, err := h.participantEvent(c)
	if err != nil {
		return err
	}
	if !ok {
		return h.flashRedirect(c, middleware.FlashWarning, "You must be a participant to access the chat room.",
			fmt.Sprintf("/event/%d", e.ID))
	}
	ctx := c.Request().Context()
	ms, err := h.store.RecentMessages(ctx, e.ID, chatHistory)
	if err != nil {
		return h.fail(c, "recent messages", err)
	}
	ps, err := h.store.Participants(ctx, e.ID)
	if err != nil {
		return h.fail(c, "participants", err)
	}
	return h.render(c, "event_chat.html", M{"Event": e, "Messages": h.messages(ms), "Participants": ps})
}

type sendRequest struct {
	Content string `json:"content"`
}

func (h *Handler) SendMessage(c echo.Context) error {
	e, ok, err := h.participantEvent(c)
	if err != nil {
		return err
	}
	if !ok {
		return jsonError(c, http.StatusForbidden, "You must be a participant to send messages")
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Message cannot be empty")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return jsonError(c, http.StatusBadRequest, "Message cannot be empty")
	}

	m := &model.ChatMessage{EventID: e.ID, UserID: user(c).ID, Content: content}
	if err := h.store.CreateMessage(c.Request().Context(), m); err != nil {
		return h.fail(c, "create message", err)
	}
	out := chat.FromModel(*m, h.loc)
	if h.hub != nil {
		h.hub.Publish(e.ID, out)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Messages(c echo.Context) error {
	e, ok, err := h.participantEvent(c)
	if err != nil {
		return err
	}
	if !ok {
		return jsonError(c, http.StatusForbidden, "You must be a participant to view messages")
	}
	lastID, _ := strconv.ParseInt(c.QueryParam("last_id"), 10, 64)

	var ms []model.ChatMessage
	if lastID > 0 {
		ms, err = h.store.MessagesAfter(c.Request().Context(), e.ID, lastID)
	} else {
		ms, err = h.store.RecentMessages(c.Request().Context(), e.ID, chatPoll)
	}
	if err != nil {
		return h.fail(c, "list messages", err)
	}
	return c.JSON(http.StatusOK, h.messages(ms))
}

func (h *Handler) ChatSocket(c echo.Context) error {
	e, ok, err := h.participantEvent(c)
	if err != nil {
		return err
	}
	if !ok {
		return jsonError(c, http.StatusForbidden, "You must be a participant to join the chat")
	}
	if h.hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat unavailable")
	}
	if err := h.hub.Serve(c.Response(), c.Request(), e.ID); err != nil {
		// the upgrader has already answered the request
		h.log.Debug("websocket upgrade", zap.Int64("event_id", e.ID), zap.Error(err))
	}
	return nil
}

func (h *Handler) Participants(c echo.Context) error {
	u := user(c)
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := h.store.GetEvent(ctx, id)
	if isNotFound(err) {
		return notFound()
	}
	if err != nil {
		return h.fail(c, "load event", err)
	}
	if !u.IsAdmin {
		families, err := h.store.VisibleFamilyIDs(ctx, u)
		if err != nil {
			return h.fail(c, "load families", err)
		}
		if !visibleTo(e, families) {
			return h.flashRedirect(c, middleware.FlashDanger, "You do not have permission to view this event.", "/events")
		}
	}
	ps, err := h.store.Participants(ctx, e.ID)
	if err != nil {
		return h.fail(c, "participants", err)
	}
	return h.render(c, "event_participants.html", M{"Event": e, "Participants": ps})
}
