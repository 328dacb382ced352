package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hogliux/collect/internal/app"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/download"
	"github.com/hogliux/collect/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	menuFn              func(ctx context.Context) (app.Menu, error)
	enterDataFn         func(ctx context.Context) (download.State, error)
	cancelFn            func() bool
	downloadStateFn     func() download.State
	ackFn               func() bool
	dismissFn           func() bool
	formsFn             func(ctx context.Context) ([]domain.Form, error)
	addInstanceFn       func(ctx context.Context, inst *domain.Instance) error
	setStatusFn         func(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) error
	unlockFn            func(ctx context.Context, password string) error
	preferencesFn       func(ctx context.Context, scope domain.Scope) (map[string]any, error)
	updatePreferencesFn func(ctx context.Context, scope domain.Scope, updates map[string]json.RawMessage) error
	resetFn             func(ctx context.Context, actions []domain.ResetAction) []domain.ResetAction
	exportFn            func(ctx context.Context) (string, error)

	mu   sync.Mutex
	subs []func(app.Event)
}

func (m *mockAppService) Menu(ctx context.Context) (app.Menu, error) {
	if m.menuFn != nil {
		return m.menuFn(ctx)
	}
	return app.Menu{AppName: "Collect v1.0.0", Dialog: app.Dialog{Kind: app.DialogNone}}, nil
}

func (m *mockAppService) Subscribe(fn func(app.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
	return func() {}
}

func (m *mockAppService) publish(ev app.Event) {
	m.mu.Lock()
	subs := append([]func(app.Event){}, m.subs...)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (m *mockAppService) EnterData(ctx context.Context) (download.State, error) {
	if m.enterDataFn != nil {
		return m.enterDataFn(ctx)
	}
	return download.State{Running: true, SequenceID: "seq-1"}, nil
}

func (m *mockAppService) CancelDownload() bool {
	if m.cancelFn != nil {
		return m.cancelFn()
	}
	return false
}

func (m *mockAppService) DownloadState() download.State {
	if m.downloadStateFn != nil {
		return m.downloadStateFn()
	}
	return download.State{}
}

func (m *mockAppService) AcknowledgeError() bool {
	if m.ackFn != nil {
		return m.ackFn()
	}
	return false
}

func (m *mockAppService) DismissNotice() bool {
	if m.dismissFn != nil {
		return m.dismissFn()
	}
	return false
}

func (m *mockAppService) Forms(ctx context.Context) ([]domain.Form, error) {
	if m.formsFn != nil {
		return m.formsFn(ctx)
	}
	return nil, nil
}

func (m *mockAppService) AddInstance(ctx context.Context, inst *domain.Instance) error {
	if m.addInstanceFn != nil {
		return m.addInstanceFn(ctx, inst)
	}
	inst.ID = uuid.New()
	if inst.Status == "" {
		inst.Status = domain.StatusIncomplete
	}
	return nil
}

func (m *mockAppService) SetInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) error {
	if m.setStatusFn != nil {
		return m.setStatusFn(ctx, id, status)
	}
	return nil
}

func (m *mockAppService) UnlockAdmin(ctx context.Context, password string) error {
	if m.unlockFn != nil {
		return m.unlockFn(ctx, password)
	}
	return nil
}

func (m *mockAppService) AdminPasswordRequired(context.Context) (bool, error) { return true, nil }

func (m *mockAppService) Preferences(ctx context.Context, scope domain.Scope) (map[string]any, error) {
	if m.preferencesFn != nil {
		return m.preferencesFn(ctx, scope)
	}
	return map[string]any{"scope": string(scope)}, nil
}

func (m *mockAppService) UpdatePreferences(ctx context.Context, scope domain.Scope, updates map[string]json.RawMessage) error {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, scope, updates)
	}
	return nil
}

func (m *mockAppService) Reset(ctx context.Context, actions []domain.ResetAction) []domain.ResetAction {
	if m.resetFn != nil {
		return m.resetFn(ctx, actions)
	}
	return nil
}

func (m *mockAppService) ExportSettings(ctx context.Context) (string, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx)
	}
	return "/collect/metadata/collect.settings", nil
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:        "test",
		Port:          "0",
		SessionSecret: "test-session-secret-32-bytes-long",
		SessionMaxAge: time.Hour,
	}
}

func newTestServer(t *testing.T, svc appService, healthChecks ...HealthCheck) *Server {
	t.Helper()
	srv := NewServer(testConfig(), svc, Metrics{}, healthChecks)
	t.Cleanup(func() { srv.stream.close() })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, stringsReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

// unlock passes the admin gate and returns the session cookie.
func unlock(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/admin/unlock", `{"password":"letmein"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}
