package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// respondError maps a service error onto its HTTP status.  Anything not
// listed is a 500.
func respondError(c echo.Context, err error) error {
	var capErr *service.CapacityExceededError
	switch {
	case errors.As(err, &capErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "capacity_exceeded",
			"message":   err.Error(),
			"remaining": capErr.Remaining,
		})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_transition", "message": err.Error()})
	case errors.Is(err, service.ErrDayClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "day_closed", "message": err.Error()})
	case errors.Is(err, service.ErrAlreadyClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already_closed", "message": err.Error()})
	case errors.Is(err, service.ErrPricingRuleNotFound):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "pricing_rule_not_found", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": err.Error()})
	case errors.Is(err, service.ErrTransient):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "transient", "message": err.Error()})
	case errors.Is(err, service.ErrConsistencyViolation):
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "consistency_violation"})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
