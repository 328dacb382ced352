package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/hogliux/collect/internal/adapter/metrics"
	"github.com/hogliux/collect/internal/app"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/download"
	"github.com/hogliux/collect/internal/platform/config"
)

type appService interface {
	Menu(ctx context.Context) (app.Menu, error)
	Subscribe(fn func(app.Event)) func()
	EnterData(ctx context.Context) (download.State, error)
	CancelDownload() bool
	DownloadState() download.State
	AcknowledgeError() bool
	DismissNotice() bool
	Forms(ctx context.Context) ([]domain.Form, error)
	AddInstance(ctx context.Context, inst *domain.Instance) error
	SetInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) error
	UnlockAdmin(ctx context.Context, password string) error
	AdminPasswordRequired(ctx context.Context) (bool, error)
	Preferences(ctx context.Context, scope domain.Scope) (map[string]any, error)
	UpdatePreferences(ctx context.Context, scope domain.Scope, updates map[string]json.RawMessage) error
	Reset(ctx context.Context, actions []domain.ResetAction) []domain.ResetAction
	ExportSettings(ctx context.Context) (string, error)
}

// Metrics bundles the collectors the server reports into. Any field may be
// nil.
type Metrics struct {
	HTTP     *metrics.HTTPMetrics
	Stream   *metrics.StreamMetrics
	Registry http.Handler
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	stream       *eventStream
	metrics      Metrics
	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
	checkOrigin  func(r *http.Request) bool
}

func NewServer(cfg *config.Config, app appService, m Metrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		metrics:      m,
		sessionStore: setupSessionStore(cfg),
		healthChecks: healthChecks,
		startTime:    time.Now(),
		checkOrigin:  newCheckOrigin(cfg.AppEnv == "development"),
	}
	srv.stream = newEventStream(m.Stream)
	srv.stream.attach(app)

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then closes every event stream client.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.stream.close()
	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName          = "collect-session"
	sessionKeyAdmin      = "admin_unlocked"
	sessionKeyUnlockedAt = "admin_unlocked_at"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteStrictMode,
	}
	return sessionStore
}
