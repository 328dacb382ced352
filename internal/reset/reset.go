// Package reset wipes local collect state by category.
package reset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hogliux/collect/internal/collect"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/settings"
)

// FileSystem is the subset of file operations a reset needs.
type FileSystem interface {
	ReadDir(dir string) ([]fs.DirEntry, error)
	RemoveAll(path string) error
	Remove(path string) error
}

type osFileSystem struct{}

func (osFileSystem) ReadDir(dir string) ([]fs.DirEntry, error) { return os.ReadDir(dir) }
func (osFileSystem) RemoveAll(path string) error               { return os.RemoveAll(path) }
func (osFileSystem) Remove(path string) error                  { return os.Remove(path) }

// OSFileSystem operates on the real disk.
var OSFileSystem FileSystem = osFileSystem{}

type Resetter struct {
	paths        *collect.Paths
	general      domain.PreferenceStore
	forms        domain.FormRepository
	instances    domain.InstanceRepository
	tileCacheDir string
	fs           FileSystem
	logger       *slog.Logger
}

type Config struct {
	Paths        *collect.Paths
	General      domain.PreferenceStore
	Forms        domain.FormRepository
	Instances    domain.InstanceRepository
	TileCacheDir string
	FS           FileSystem
	Logger       *slog.Logger
}

func New(cfg Config) *Resetter {
	if cfg.FS == nil {
		cfg.FS = OSFileSystem
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resetter{
		paths:        cfg.Paths,
		general:      cfg.General,
		forms:        cfg.Forms,
		instances:    cfg.Instances,
		tileCacheDir: cfg.TileCacheDir,
		fs:           cfg.FS,
		logger:       cfg.Logger.With("component", "reset"),
	}
}

// Reset applies each requested category independently and returns the ones
// that did not complete, in request order. Repeated categories run once.
func (r *Resetter) Reset(ctx context.Context, actions []domain.ResetAction) []domain.ResetAction {
	failed := []domain.ResetAction{}
	seen := make(map[domain.ResetAction]bool, len(actions))

	for _, action := range actions {
		if seen[action] {
			continue
		}
		seen[action] = true

		if err := r.apply(ctx, action); err != nil {
			r.logger.WarnContext(ctx, "Reset category failed", "category", action, "error", err)
			failed = append(failed, action)
			continue
		}
		r.logger.InfoContext(ctx, "Reset category done", "category", action)
	}
	return failed
}

func (r *Resetter) apply(ctx context.Context, action domain.ResetAction) error {
	switch action {
	case domain.ResetPreferences:
		return settings.ResetToDefaults(ctx, r.general, settings.General)
	case domain.ResetInstances:
		return r.resetInstances(ctx)
	case domain.ResetForms:
		return r.resetForms(ctx)
	case domain.ResetLayers:
		return r.deleteContents(r.paths.MustGet(collect.PathOfflineLayers))
	case domain.ResetCache:
		return r.deleteContents(r.paths.MustGet(collect.PathCache))
	case domain.ResetOSMDroid:
		if r.tileCacheDir == "" {
			return nil
		}
		return r.deleteContents(r.tileCacheDir)
	default:
		return fmt.Errorf("unknown reset category %d", int(action))
	}
}

func (r *Resetter) resetInstances(ctx context.Context) error {
	recordsErr := r.instances.DeleteAll(ctx)
	if recordsErr != nil {
		recordsErr = fmt.Errorf("delete instance records: %w", recordsErr)
	}
	return errors.Join(recordsErr, r.deleteContents(r.paths.MustGet(collect.PathInstances)))
}

func (r *Resetter) resetForms(ctx context.Context) error {
	recordsErr := r.forms.DeleteAll(ctx)
	if recordsErr != nil {
		recordsErr = fmt.Errorf("delete form records: %w", recordsErr)
	}
	dirErr := r.deleteContents(r.paths.MustGet(collect.PathForms))

	itemsetsErr := r.fs.Remove(r.paths.ItemsetsDB())
	if errors.Is(itemsetsErr, fs.ErrNotExist) {
		itemsetsErr = nil
	}
	if itemsetsErr != nil {
		itemsetsErr = fmt.Errorf("delete itemsets database: %w", itemsetsErr)
	}
	return errors.Join(recordsErr, dirErr, itemsetsErr)
}

// deleteContents removes everything inside dir but keeps dir itself. A
// missing dir has nothing to delete. Every entry is attempted even after
// an earlier one fails.
func (r *Resetter) deleteContents(dir string) error {
	entries, err := r.fs.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}

	var errs []error
	for _, e := range entries {
		if err := r.fs.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", e.Name(), err))
		}
	}
	return errors.Join(errs...)
}
