package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ctxOperatorID = "operator_id"
	ctxRole       = "role"
)

// JWTAuth validates a Bearer access token and stores the operator id and
// role in the echo context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ctxOperatorID, claims.Subject)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}

// OperatorID returns the authenticated operator, or "anon".
func OperatorID(c echo.Context) string {
	if s, ok := c.Get(ctxOperatorID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
