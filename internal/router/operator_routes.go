package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/middleware"
	"github.com/iliyamo/school-show-booking/internal/utils"
)

// RegisterOperator mounts the routes restricted to operators: post-show
// reconciliation, travel purges, closeouts, reporting and hold sweeps.
// summaryCache, when not nil, wraps the daily summary read, which never changes once
// written.
func RegisterOperator(e *echo.Echo, h Handlers, jwtSecret string, summaryCache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleOperator, utils.RoleAdmin),
	)
	g.POST("/bookings/:id/complete", h.Bookings.Complete)
	g.PUT("/bookings/:id/attendance", h.Bookings.ReconcileAttendance)
	g.DELETE("/bookings/:id", h.Bookings.Purge)

	g.POST("/days/:id/close", h.Closeout.CloseDay)
	g.GET("/summaries/daily/:date", h.Closeout.Daily, optional(summaryCache)...)
	g.GET("/summaries/monthly/:year/:month", h.Closeout.Monthly)
	g.POST("/summaries/monthly/:year/:month/rebuild", h.Closeout.RebuildMonth)

	g.POST("/holds/sweep", h.Sweep.Sweep)
}
