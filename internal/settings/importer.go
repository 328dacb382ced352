package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/hogliux/collect/internal/domain"
)

// Notice is a user-visible outcome of an import.
type Notice string

const (
	NoticeLoaded  Notice = "settings_loaded"
	NoticeCorrupt Notice = "corrupt_settings"
)

// Transfer moves settings between the two preference stores and a
// settings file.
type Transfer struct {
	general domain.PreferenceStore
	admin   domain.PreferenceStore
	logger  *slog.Logger
	notify  func(Notice)
}

func NewTransfer(general, admin domain.PreferenceStore, logger *slog.Logger, notify func(Notice)) *Transfer {
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Transfer{
		general: general,
		admin:   admin,
		logger:  logger.With("component", "settings"),
		notify:  notify,
	}
}

// ImportIfPresent loads path into both stores when it exists. On success the
// file is removed and NoticeLoaded is raised. On failure the file stays for
// inspection and a single NoticeCorrupt is raised. A missing file is not an
// import and raises nothing.
func (t *Transfer) ImportIfPresent(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err := t.importFile(ctx, path); err != nil {
		t.logger.ErrorContext(ctx, "Settings import failed, leaving file in place", "path", path, "error", err)
		t.notify(NoticeCorrupt)
		return false, err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.logger.WarnContext(ctx, "Settings imported but file could not be removed", "path", path, "error", err)
	}
	t.logger.InfoContext(ctx, "Settings imported", "path", path)
	t.notify(NoticeLoaded)
	return true, nil
}

func (t *Transfer) importFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open settings file: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := Decode(f, General, Admin)
	if err != nil {
		return err
	}

	// The file is fully validated at this point. The two stores are still
	// written one after the other with no rollback between them.
	if err := t.general.Replace(ctx, doc.General); err != nil {
		return fmt.Errorf("apply general preferences: %w", err)
	}
	if err := t.admin.Replace(ctx, doc.Admin); err != nil {
		return fmt.Errorf("apply admin preferences: %w", err)
	}
	return nil
}

// Snapshot reads both stores into a Document.
func (t *Transfer) Snapshot(ctx context.Context) (*Document, error) {
	g, err := t.general.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read general preferences: %w", err)
	}
	a, err := t.admin.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read admin preferences: %w", err)
	}
	return &Document{General: g, Admin: a}, nil
}

// Export writes both stores to path, replacing any existing file only once
// the new one is complete.
func (t *Transfer) Export(ctx context.Context, path string) error {
	doc, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".collect.settings-*")
	if err != nil {
		return fmt.Errorf("create settings file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, doc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install settings file: %w", err)
	}
	t.logger.InfoContext(ctx, "Settings exported", "path", path,
		"general", len(doc.General), "admin", len(doc.Admin))
	return nil
}

func sortedKeys(values map[string]domain.Value) []string {
	return slices.Sorted(maps.Keys(values))
}
