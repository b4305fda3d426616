package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const sessionContextKey = "auth.session"

// Middleware returns echo middleware that requires a valid bearer session
// token and stores the parsed Session on the request context.
func Middleware(m *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header must be a bearer token")
			}
			session, err := m.Parse(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session")
			}
			c.Set(sessionContextKey, session)
			return next(c)
		}
	}
}

// SessionFromContext returns the Session stored by Middleware, or nil.
func SessionFromContext(c echo.Context) *Session {
	s, _ := c.Get(sessionContextKey).(*Session)
	return s
}
