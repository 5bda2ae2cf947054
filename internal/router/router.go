// Package router registers the HTTP routes of the booking API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/handler"
)

// Handlers bundles every handler the API mounts.
type Handlers struct {
	Bookings *handler.BookingHandler
	Inbox    *handler.InboxHandler
	Slots    *handler.SlotHandler
	Pricing  *handler.PricingHandler
	Closeout *handler.CloseoutHandler
	Sweep    *handler.SweepHandler
}

// RegisterRoutes installs the request validator and the unauthenticated
// health check.
func RegisterRoutes(e *echo.Echo) {
	if e.Validator == nil {
		e.Validator = handler.NewValidator()
	}
	e.GET("/healthz", handler.Health)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
