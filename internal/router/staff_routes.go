package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/middleware"
	"github.com/iliyamo/school-show-booking/internal/utils"
)

// RegisterStaff mounts the routes front-desk clerks use to take and
// follow up bookings.  Operators and admins may call them as well.
// limiter, when not nil, guards booking creation only.
func RegisterStaff(e *echo.Echo, h Handlers, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleClerk, utils.RoleOperator, utils.RoleAdmin),
	)
	g.POST("/slots/:id/bookings", h.Bookings.Create, optional(limiter)...)
	g.GET("/bookings/:id", h.Bookings.Get)
	g.POST("/bookings/:id/confirm", h.Bookings.Confirm)
	g.POST("/bookings/:id/cancel", h.Bookings.Cancel)

	g.GET("/inbox", h.Inbox.List)
	g.GET("/slots/:id/capacity", h.Slots.Capacity)
	g.GET("/pricing/resolve", h.Pricing.Resolve)
}
