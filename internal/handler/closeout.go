package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// CloseoutHandler runs day closeouts and serves the summaries they
// produce.
type CloseoutHandler struct {
	Closeout *service.Closeout
}

// NewCloseoutHandler panics when closeout is nil.
func NewCloseoutHandler(closeout *service.Closeout) *CloseoutHandler {
	if closeout == nil {
		panic("nil closeout passed to NewCloseoutHandler")
	}
	return &CloseoutHandler{Closeout: closeout}
}

// CloseDay handles POST /v1/days/:id/close.  Returns 201 with the
// day's summary, or 409 when the day was already closed.
func (h *CloseoutHandler) CloseDay(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid day id"})
	}
	sum, err := h.Closeout.CloseDay(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toDaily(sum))
}

// Daily handles GET /v1/summaries/daily/:date.
func (h *CloseoutHandler) Daily(c echo.Context) error {
	date, err := time.Parse(dateLayout, c.Param("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	sum, err := h.Closeout.DailySummary(c.Request().Context(), date)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toDaily(sum))
}

// Monthly handles GET /v1/summaries/monthly/:year/:month.  The month is
// recomputed from its daily summaries unless ?source=stored asks for the
// last rebuilt row.
func (h *CloseoutHandler) Monthly(c echo.Context) error {
	year, month, ok := yearMonth(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid year or month"})
	}
	get := h.Closeout.MonthlySummary
	if c.QueryParam("source") == "stored" {
		get = h.Closeout.StoredMonthlySummary
	}
	m, err := get(c.Request().Context(), year, month)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toMonthly(m))
}

// RebuildMonth handles POST /v1/summaries/monthly/:year/:month/rebuild.
func (h *CloseoutHandler) RebuildMonth(c echo.Context) error {
	year, month, ok := yearMonth(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid year or month"})
	}
	m, err := h.Closeout.RebuildMonth(c.Request().Context(), year, month)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toMonthly(m))
}

func yearMonth(c echo.Context) (int, time.Month, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return 0, 0, false
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		return 0, 0, false
	}
	return year, time.Month(month), true
}
