package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hogliux/collect/internal/domain"
	apperrors "github.com/hogliux/collect/internal/errors"
)

func (s *Server) registerAdminRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/api/preferences", s.handleGetPreferences(domain.ScopeGeneral))
	s.echo.PUT("/api/preferences", s.handleUpdatePreferences(domain.ScopeGeneral))

	s.echo.GET("/api/admin", s.handleAdminStatus)
	s.echo.POST("/api/admin/unlock", s.handleUnlock, rateLimiter)
	s.echo.POST("/api/admin/lock", s.handleLock)

	admin := s.echo.Group("/api/admin", s.requireAdmin)
	admin.GET("/preferences", s.handleGetPreferences(domain.ScopeAdmin))
	admin.PUT("/preferences", s.handleUpdatePreferences(domain.ScopeAdmin))
	admin.POST("/reset", s.handleReset)
	admin.POST("/settings/export", s.handleExportSettings)
}

func (s *Server) handleAdminStatus(c echo.Context) error {
	required, err := s.app.AdminPasswordRequired(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to read admin password", err)
	}
	response := map[string]bool{
		"password_required": required,
		"unlocked":          s.isAdmin(c),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type unlockRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleUnlock(c echo.Context) error {
	var req unlockRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if err := s.app.UnlockAdmin(c.Request().Context(), req.Password); err != nil {
		return err
	}

	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyAdmin] = true
	session.Values[sessionKeyUnlockedAt] = time.Now().Unix()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLock(c echo.Context) error {
	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to clear admin session", "error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetPreferences(scope domain.Scope) echo.HandlerFunc {
	return func(c echo.Context) error {
		prefs, err := s.app.Preferences(c.Request().Context(), scope)
		if err != nil {
			return apperrors.InternalError("failed to read preferences", err).WithContext("scope", scope)
		}
		if err := c.JSON(http.StatusOK, prefs); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}
}

func (s *Server) handleUpdatePreferences(scope domain.Scope) echo.HandlerFunc {
	return func(c echo.Context) error {
		var updates map[string]json.RawMessage
		if err := json.NewDecoder(c.Request().Body).Decode(&updates); err != nil {
			return apperrors.ValidationError("request body must be a JSON object")
		}
		if len(updates) == 0 {
			return apperrors.ValidationError("no preferences given")
		}
		if err := s.app.UpdatePreferences(c.Request().Context(), scope, updates); err != nil {
			return err
		}
		return s.handleGetPreferences(scope)(c)
	}
}

type resetRequest struct {
	Actions []string `json:"actions"`
}

type resetResponse struct {
	Failed []domain.ResetAction `json:"failed"`
}

func (s *Server) handleReset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if len(req.Actions) == 0 {
		return apperrors.ValidationError("actions is required")
	}

	actions := make([]domain.ResetAction, 0, len(req.Actions))
	for _, name := range req.Actions {
		a, err := domain.ParseResetAction(name)
		if err != nil {
			return apperrors.ValidationError(err.Error()).WithContext("action", name)
		}
		actions = append(actions, a)
	}

	failed := s.app.Reset(c.Request().Context(), actions)
	if failed == nil {
		failed = []domain.ResetAction{}
	}
	if err := c.JSON(http.StatusOK, resetResponse{Failed: failed}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleExportSettings(c echo.Context) error {
	path, err := s.app.ExportSettings(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to export settings", err)
	}
	if err := c.JSON(http.StatusOK, map[string]string{"path": path}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
