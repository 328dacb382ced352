package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hogliux/collect/internal/domain"
	apperrors "github.com/hogliux/collect/internal/errors"
)

func (s *Server) registerMenuRoutes() {
	s.echo.GET("/api/menu", s.handleMenu)
	s.echo.DELETE("/api/menu/notice", s.handleDismissNotice)
	s.echo.GET("/api/forms", s.handleListForms)
	s.echo.GET("/api/forms/download", s.handleDownloadState)
	s.echo.POST("/api/forms/download", s.handleStartDownload)
	s.echo.DELETE("/api/forms/download", s.handleCancelDownload)
	s.echo.POST("/api/forms/download/ack", s.handleAcknowledge)
	s.echo.POST("/api/instances", s.handleCreateInstance)
	s.echo.PATCH("/api/instances/:id", s.handleUpdateInstance)
}

func (s *Server) handleMenu(c echo.Context) error {
	menu, err := s.app.Menu(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to build menu", err)
	}
	if err := c.JSON(http.StatusOK, menu); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDismissNotice(c echo.Context) error {
	if !s.app.DismissNotice() {
		return apperrors.NotFoundError("no notice to dismiss")
	}
	return c.NoContent(http.StatusNoContent)
}

type formResponse struct {
	FormID  string `json:"form_id"`
	Version string `json:"version,omitempty"`
	Name    string `json:"name"`
	Hash    string `json:"hash,omitempty"`
	Path    string `json:"path"`
}

func (s *Server) handleListForms(c echo.Context) error {
	forms, err := s.app.Forms(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list forms", err)
	}
	out := make([]formResponse, 0, len(forms))
	for _, f := range forms {
		out = append(out, formResponse{FormID: f.FormID, Version: f.Version, Name: f.Name, Hash: f.Hash, Path: f.FilePath})
	}
	if err := c.JSON(http.StatusOK, out); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDownloadState(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.app.DownloadState()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleStartDownload answers 202 for a new sequence and 200 with the
// running sequence when one is already in flight.
func (s *Server) handleStartDownload(c echo.Context) error {
	state, err := s.app.EnterData(c.Request().Context())
	status := http.StatusAccepted
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		status = http.StatusOK
	case err != nil:
		return err
	}
	if err := c.JSON(status, state); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCancelDownload(c echo.Context) error {
	if !s.app.CancelDownload() {
		return apperrors.NotFoundError("no download in progress")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleAcknowledge(c echo.Context) error {
	if !s.app.AcknowledgeError() {
		return apperrors.ConflictError("no download error to acknowledge")
	}
	return c.NoContent(http.StatusNoContent)
}

type createInstanceRequest struct {
	FormID      string `json:"form_id"`
	FormVersion string `json:"form_version"`
	DisplayName string `json:"display_name"`
	FilePath    string `json:"file_path"`
	Status      string `json:"status"`
}

type instanceResponse struct {
	ID     uuid.UUID             `json:"id"`
	FormID string                `json:"form_id"`
	Status domain.InstanceStatus `json:"status"`
}

func (s *Server) handleCreateInstance(c echo.Context) error {
	var req createInstanceRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.FormID == "" {
		return apperrors.ValidationError("form_id is required")
	}

	inst := &domain.Instance{
		FormID:      req.FormID,
		FormVersion: req.FormVersion,
		DisplayName: req.DisplayName,
		FilePath:    req.FilePath,
	}
	if req.Status != "" {
		status, err := domain.ParseInstanceStatus(req.Status)
		if err != nil {
			return apperrors.ValidationError(err.Error()).WithContext("status", req.Status)
		}
		inst.Status = status
	}

	if err := s.app.AddInstance(c.Request().Context(), inst); err != nil {
		return apperrors.InternalError("failed to save instance", err).WithContext("form_id", req.FormID)
	}
	if err := c.JSON(http.StatusCreated, instanceResponse{ID: inst.ID, FormID: inst.FormID, Status: inst.Status}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type updateInstanceRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateInstance(c echo.Context) error {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return apperrors.ValidationError("invalid instance id").WithContext("id", idStr)
	}

	var req updateInstanceRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	status, err := domain.ParseInstanceStatus(req.Status)
	if err != nil {
		return apperrors.ValidationError(err.Error()).WithContext("status", req.Status)
	}

	if err := s.app.SetInstanceStatus(c.Request().Context(), id, status); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
