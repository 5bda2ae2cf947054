package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// SlotHandler reports the capacity ledger of a slot.
type SlotHandler struct {
	Ledger *service.Ledger
}

// NewSlotHandler panics when ledger is nil.
func NewSlotHandler(ledger *service.Ledger) *SlotHandler {
	if ledger == nil {
		panic("nil ledger passed to NewSlotHandler")
	}
	return &SlotHandler{Ledger: ledger}
}

// Capacity handles GET /v1/slots/:id/capacity.  A non-zero drift means
// the cached counter disagrees with the bookings; it is reported, not
// repaired.
func (h *SlotHandler) Capacity(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	sc, err := h.Ledger.Audit(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sc)
}
