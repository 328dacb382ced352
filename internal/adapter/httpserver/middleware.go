package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hogliux/collect/internal/platform/correlation"
)

const headerRequestID = "X-Request-ID"

// correlationMiddleware tags the request context with the caller's request
// id, or a fresh one, and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Request().Header.Get(headerRequestID)
		if id != "" {
			ctx = correlation.WithID(ctx, id)
		} else {
			ctx, id = correlation.Ensure(ctx)
		}
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

// requireAdmin rejects requests whose session has not passed the admin
// password gate.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.isAdmin(c) {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

func (s *Server) isAdmin(c echo.Context) bool {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return false
	}
	unlocked, ok := session.Values[sessionKeyAdmin].(bool)
	return ok && unlocked
}
