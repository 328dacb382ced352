package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hogliux/collect/internal/collect"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/download"
	"github.com/hogliux/collect/internal/settings"
)

// ExportFileName is where ExportSettings writes under the metadata dir.
const ExportFileName = "collect.settings"

// Downloads is the part of the download orchestrator the menu drives.
type Downloads interface {
	Start(ctx context.Context) (download.State, error)
	Cancel() bool
	State() download.State
	Subscribe(fn func(download.Event)) func()
}

type Resetter interface {
	Reset(ctx context.Context, actions []domain.ResetAction) []domain.ResetAction
}

type Config struct {
	Context   *collect.Context
	General   domain.PreferenceStore
	Admin     domain.PreferenceStore
	Forms     domain.FormRepository
	Instances domain.InstanceRepository
	Downloads Downloads
	Resetter  Resetter
	Gate      *settings.AdminGate
	Logger    *slog.Logger
}

// Service is the main-menu controller. It owns the dialog state, keeps the
// counters fresh and fans events out to subscribers.
type Service struct {
	app       *collect.Context
	general   domain.PreferenceStore
	admin     domain.PreferenceStore
	forms     domain.FormRepository
	instances domain.InstanceRepository
	downloads Downloads
	resetter  Resetter
	gate      *settings.AdminGate
	transfer  *settings.Transfer
	logger    *slog.Logger

	events       *broker
	countersOnce singleflight.Group
	changes      chan struct{}

	mu     sync.Mutex
	dialog Dialog
	notice string

	unsubscribe func()
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Service{
		app:       cfg.Context,
		general:   cfg.General,
		admin:     cfg.Admin,
		forms:     cfg.Forms,
		instances: cfg.Instances,
		downloads: cfg.Downloads,
		resetter:  cfg.Resetter,
		gate:      cfg.Gate,
		logger:    cfg.Logger.With("component", "menu"),
		events:    newBroker(),
		changes:   make(chan struct{}, 1),
		dialog:    Dialog{Kind: DialogNone},
		stopCh:    make(chan struct{}),
	}
	s.transfer = settings.NewTransfer(cfg.General, cfg.Admin, cfg.Logger, func(n settings.Notice) {
		s.mu.Lock()
		s.notice = string(n)
		s.mu.Unlock()
		s.events.publish(noticeEvent(n))
	})
	return s
}

// Start prepares local state and begins the refresh loop. A directory that
// cannot be created is fatal; a broken settings file is not.
func (s *Service) Start(ctx context.Context) error {
	if err := s.app.Paths.CreateDirs(); err != nil {
		return err
	}

	if _, err := s.transfer.ImportIfPresent(ctx, s.app.Paths.SettingsFile()); err != nil {
		s.logger.WarnContext(ctx, "Continuing with stored preferences", "error", err)
	}

	if err := settings.SeedDefaults(ctx, s.general, settings.General); err != nil {
		return fmt.Errorf("failed to seed general preferences: %w", err)
	}
	if err := settings.SeedDefaults(ctx, s.admin, settings.Admin); err != nil {
		return fmt.Errorf("failed to seed admin preferences: %w", err)
	}

	if err := s.loadCredentials(ctx); err != nil {
		s.logger.WarnContext(ctx, "Server credentials not loaded", "error", err)
	}

	s.unsubscribe = s.downloads.Subscribe(s.onDownloadEvent)

	s.wg.Add(1)
	go s.refreshLoop()
	s.Notify()
	return nil
}

// Stop ends the refresh loop and detaches from the orchestrator. Safe to
// call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Notify schedules a menu refresh. Bursts collapse into one refresh.
func (s *Service) Notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Service) refreshLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.changes:
			menu, err := s.Menu(context.Background())
			if err != nil {
				s.logger.Error("Menu refresh failed", "error", err)
				continue
			}
			s.events.publish(Event{Type: EventMenuUpdated, Menu: &menu})
		}
	}
}

// Subscribe registers fn for every menu event until the returned function
// is called. fn must not block.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.events.subscribe(fn)
}

func (s *Service) Menu(ctx context.Context) (Menu, error) {
	counters, err := s.counters(ctx)
	if err != nil {
		return Menu{}, err
	}

	buttons := make([]Button, 0, len(menuButtons))
	for _, b := range menuButtons {
		visible := true
		if b.adminKey != "" {
			visible, err = settings.Bool(ctx, s.admin, settings.Admin, b.adminKey)
			if err != nil {
				return Menu{}, fmt.Errorf("failed to read %s: %w", b.adminKey, err)
			}
		}
		buttons = append(buttons, Button{
			ID:      b.id,
			Label:   buttonLabel(b.id, b.text, counters),
			Visible: visible,
		})
	}

	return Menu{
		AppName:  s.app.AppName,
		Counters: counters,
		Buttons:  buttons,
		Dialog:   s.currentDialog(),
		Notice:   s.pendingNotice(),
	}, nil
}

func (s *Service) pendingNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// DismissNotice clears the settings notice carried by the menu. It reports
// whether there was one.
func (s *Service) DismissNotice() bool {
	s.mu.Lock()
	had := s.notice != ""
	s.notice = ""
	s.mu.Unlock()

	if had {
		s.Notify()
	}
	return had
}

func (s *Service) counters(ctx context.Context) (domain.Counters, error) {
	v, err, _ := s.countersOnce.Do("counters", func() (any, error) {
		byStatus, err := s.instances.CountByStatus(ctx)
		if err != nil {
			return domain.Counters{}, fmt.Errorf("failed to count instances: %w", err)
		}
		return domain.CountersFrom(byStatus), nil
	})
	if err != nil {
		return domain.Counters{}, err
	}
	return v.(domain.Counters), nil
}

func (s *Service) currentDialog() Dialog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialog
}

func (s *Service) setDialog(d Dialog) {
	s.mu.Lock()
	s.dialog = d
	s.mu.Unlock()
}

// EnterData starts a form download. Offline, the user goes straight to the
// form chooser and the returned error is ErrNoConnection.
func (s *Service) EnterData(ctx context.Context) (download.State, error) {
	s.app.Activity.LogAction(ctx, "mainMenu", "enterData", "click")

	protocol, err := settings.String(ctx, s.general, settings.General, settings.KeyProtocol)
	if err != nil {
		return download.State{}, err
	}
	if protocol == settings.ProtocolGoogleSheets {
		return download.State{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedProtocol, protocol)
	}

	// Credentials age out of the session; the stored ones are put back for
	// every sequence.
	if err := s.loadCredentials(ctx); err != nil {
		s.logger.WarnContext(ctx, "Server credentials not loaded", "error", err)
	}

	state, err := s.downloads.Start(ctx)
	if errors.Is(err, domain.ErrNoConnection) {
		s.events.publish(Event{Type: EventNotice, Notice: NoticeNoConnection})
		s.events.publish(Event{Type: EventNavigate, Screen: ScreenFormChooser})
	}
	return state, err
}

func (s *Service) onDownloadEvent(ev download.Event) {
	switch ev.Type {
	case download.EventStarted:
		s.setDialog(Dialog{Kind: DialogProgress, Message: "Fetching form list"})
	case download.EventListReady:
		s.setDialog(Dialog{Kind: DialogProgress, Message: fmt.Sprintf("Downloading %d forms", len(ev.Forms))})
	case download.EventProgress:
		d := Dialog{Kind: DialogProgress, Progress: ev.Progress}
		if p := ev.Progress; p != nil && p.CurrentFile != "" {
			d.Message = fmt.Sprintf("Fetching %s (%d of %d)", p.CurrentFile, p.Done+1, p.Total)
		}
		s.setDialog(d)
	case download.EventFinished:
		if ev.Result != nil && ev.Result.ShowsError() {
			s.setDialog(Dialog{Kind: DialogListError, Message: ev.Result.ErrorMessage})
		} else {
			s.setDialog(Dialog{Kind: DialogNone})
		}
	}

	s.events.publish(Event{Type: EventDownload, Download: &ev})
	if ev.Type == download.EventFinished && (ev.Result == nil || !ev.Result.ShowsError()) {
		s.events.publish(Event{Type: EventNavigate, Screen: ScreenFormChooser})
	}
	if ev.Type == download.EventFinished {
		s.Notify()
	}
}

// AcknowledgeError dismisses the list-error dialog and sends the user on to
// the form chooser. It reports whether there was a dialog to dismiss.
func (s *Service) AcknowledgeError() bool {
	s.mu.Lock()
	if s.dialog.Kind != DialogListError {
		s.mu.Unlock()
		return false
	}
	s.dialog = Dialog{Kind: DialogNone}
	s.mu.Unlock()

	s.events.publish(Event{Type: EventNavigate, Screen: ScreenFormChooser})
	s.Notify()
	return true
}

func (s *Service) CancelDownload() bool {
	return s.downloads.Cancel()
}

func (s *Service) DownloadState() download.State {
	return s.downloads.State()
}

func (s *Service) AddInstance(ctx context.Context, inst *domain.Instance) error {
	if inst.Status == "" {
		inst.Status = domain.StatusIncomplete
	}
	if err := s.instances.Insert(ctx, inst); err != nil {
		return err
	}
	s.Notify()
	return nil
}

func (s *Service) SetInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) error {
	if err := s.instances.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.Notify()
	return nil
}

func (s *Service) UnlockAdmin(ctx context.Context, password string) error {
	return s.gate.Unlock(ctx, password)
}

func (s *Service) AdminPasswordRequired(ctx context.Context) (bool, error) {
	return s.gate.PasswordRequired(ctx)
}

func (s *Service) store(scope domain.Scope) (domain.PreferenceStore, *settings.Registry) {
	if scope == domain.ScopeAdmin {
		return s.admin, settings.Admin
	}
	return s.general, settings.General
}

// Preferences returns every stored value of scope. Secret values are
// reported as set or unset, never returned.
func (s *Service) Preferences(ctx context.Context, scope domain.Scope) (map[string]any, error) {
	store, reg := s.store(scope)
	values, err := store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s preferences: %w", scope, err)
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		if reg.IsSecret(k) {
			out[k] = v.Text() != ""
			continue
		}
		out[k] = v.Any()
	}
	return out, nil
}

// UpdatePreferences applies updates all-or-nothing with respect to
// validation: nothing is written unless every value is valid.
func (s *Service) UpdatePreferences(ctx context.Context, scope domain.Scope, updates map[string]json.RawMessage) error {
	store, reg := s.store(scope)

	values := make(map[string]domain.Value, len(updates))
	for name, raw := range updates {
		v, err := reg.DecodeJSON(name, raw)
		if err != nil {
			return err
		}
		values[name] = v
	}

	for _, name := range slices.Sorted(maps.Keys(values)) {
		if err := store.Set(ctx, name, values[name]); err != nil {
			return fmt.Errorf("failed to set %s preference %q: %w", scope, name, err)
		}
	}

	if scope == domain.ScopeGeneral && touchesCredentials(values) {
		if err := s.loadCredentials(ctx); err != nil {
			s.logger.WarnContext(ctx, "Server credentials not reloaded", "error", err)
		}
	}
	s.app.Activity.LogAction(ctx, "preferences", "update", string(scope))
	s.Notify()
	return nil
}

func touchesCredentials(values map[string]domain.Value) bool {
	for _, k := range []string{settings.KeyServerURL, settings.KeyUsername, settings.KeyPassword} {
		if _, ok := values[k]; ok {
			return true
		}
	}
	return false
}

// Reset clears the requested categories and returns the ones that failed.
func (s *Service) Reset(ctx context.Context, actions []domain.ResetAction) []domain.ResetAction {
	failed := s.resetter.Reset(ctx, actions)

	for _, a := range actions {
		if a == domain.ResetPreferences && !slices.Contains(failed, a) {
			if err := s.loadCredentials(ctx); err != nil {
				s.logger.WarnContext(ctx, "Server credentials not reloaded after reset", "error", err)
			}
			break
		}
	}
	s.Notify()
	return failed
}

// ExportSettings writes both preference stores to the metadata dir and
// returns the file path.
func (s *Service) ExportSettings(ctx context.Context) (string, error) {
	path := filepath.Join(s.app.Paths.MustGet(collect.PathMetadata), ExportFileName)
	if err := s.transfer.Export(ctx, path); err != nil {
		return "", err
	}
	s.app.Activity.LogAction(ctx, "preferences", "export", path)
	return path, nil
}

// loadCredentials puts the stored username and password into the session
// for the configured server host. Without a username any stored
// credentials are forgotten.
func (s *Service) loadCredentials(ctx context.Context) error {
	host, err := settings.ServerHost(ctx, s.general)
	if err != nil {
		return err
	}
	username, err := settings.String(ctx, s.general, settings.General, settings.KeyUsername)
	if err != nil {
		return err
	}
	creds := s.app.Session.Credentials()
	if username == "" {
		creds.Clear()
		return nil
	}
	password, err := settings.String(ctx, s.general, settings.General, settings.KeyPassword)
	if err != nil {
		return err
	}
	creds.Set(host, collect.Credentials{Username: username, Password: password})
	return nil
}

// Forms lists the blank forms on disk for the form chooser.
func (s *Service) Forms(ctx context.Context) ([]domain.Form, error) {
	forms, err := s.forms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return forms, nil
}
