package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// SweepHandler lets an operator expire overdue holds on demand.
type SweepHandler struct {
	Sweeper *service.Sweeper
}

// NewSweepHandler panics when sweeper is nil.
func NewSweepHandler(sweeper *service.Sweeper) *SweepHandler {
	if sweeper == nil {
		panic("nil sweeper passed to NewSweepHandler")
	}
	return &SweepHandler{Sweeper: sweeper}
}

// Sweep handles POST /v1/holds/sweep.
func (h *SweepHandler) Sweep(c echo.Context) error {
	res, err := h.Sweeper.SweepNow(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
