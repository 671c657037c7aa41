package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// AdminKeyMiddleware protects operational endpoints with a static shared key
// in the X-Admin-Key header. An empty configured key disables the endpoints
// entirely rather than leaving them open.
func AdminKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "admin api disabled"})
			}
			key := strings.TrimSpace(c.Request().Header.Get("X-Admin-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing admin key"})
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid admin key"})
			}
			return next(c)
		}
	}
}
