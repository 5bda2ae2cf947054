package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// InboxHandler serves the operator work queue of open bookings.
type InboxHandler struct {
	Inbox *service.Inbox
	Now   func() time.Time
}

// NewInboxHandler panics when inbox is nil.  A nil clock means time.Now.
func NewInboxHandler(inbox *service.Inbox, now func() time.Time) *InboxHandler {
	if inbox == nil {
		panic("nil inbox passed to NewInboxHandler")
	}
	if now == nil {
		now = time.Now
	}
	return &InboxHandler{Inbox: inbox, Now: now}
}

// List handles GET /v1/inbox.  Items come most urgent first: overdue
// holds, then holds by time left, then pending bookings.
func (h *InboxHandler) List(c echo.Context) error {
	items, err := h.Inbox.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	now := h.Now()
	out := make([]inboxItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toInboxItem(it, now))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "count": len(out)})
}
