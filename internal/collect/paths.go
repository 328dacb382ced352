package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hogliux/collect/internal/domain"
)

// PathID identifies a well-known location under the collect root.
type PathID int

const (
	PathRoot PathID = iota
	PathForms
	PathInstances
	PathCache
	PathMetadata
	PathTmpFile
	PathTmpDrawFile
	PathTmpXML
	PathLog
	PathOfflineLayers
)

var relPaths = map[PathID]string{
	PathRoot:          "",
	PathForms:         "forms",
	PathInstances:     "instances",
	PathCache:         ".cache",
	PathMetadata:      "metadata",
	PathTmpFile:       filepath.Join(".cache", "tmp.jpg"),
	PathTmpDrawFile:   filepath.Join(".cache", "tmpDraw.jpg"),
	PathTmpXML:        filepath.Join(".cache", "tmp.xml"),
	PathLog:           "log",
	PathOfflineLayers: "layers",
}

// SettingsFileName is the import file dropped into the root.
const SettingsFileName = "collect.settings"

// ItemsetsDBName is the cached itemsets database under metadata/.
const ItemsetsDBName = "itemsets.db"

// Paths resolves the directory layout under one root.
type Paths struct {
	root string
}

func NewPaths(root string) (*Paths, error) {
	if root == "" {
		return nil, errors.New("collect root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve collect root: %w", err)
	}
	return &Paths{root: abs}, nil
}

func (p *Paths) Root() string { return p.root }

// Get resolves id to an absolute path. Unknown ids are an error.
func (p *Paths) Get(id PathID) (string, error) {
	rel, ok := relPaths[id]
	if !ok {
		return "", fmt.Errorf("unknown path id %d", int(id))
	}
	return filepath.Join(p.root, rel), nil
}

// MustGet is Get for ids declared in this package.
func (p *Paths) MustGet(id PathID) string {
	path, err := p.Get(id)
	if err != nil {
		panic(err)
	}
	return path
}

func (p *Paths) SettingsFile() string {
	return filepath.Join(p.root, SettingsFileName)
}

func (p *Paths) ItemsetsDB() string {
	return filepath.Join(p.MustGet(PathMetadata), ItemsetsDBName)
}

var requiredDirs = []PathID{PathRoot, PathForms, PathInstances, PathCache, PathMetadata, PathLog, PathOfflineLayers}

// CreateDirs makes sure every top-level directory exists. A path that exists
// but is not a directory is fatal.
func (p *Paths) CreateDirs() error {
	for _, id := range requiredDirs {
		dir := p.MustGet(id)
		info, err := os.Stat(dir)
		switch {
		case err == nil:
			if !info.IsDir() {
				return fmt.Errorf("%w: %s exists and is not a directory", domain.ErrDirectoryCreation, dir)
			}
		case errors.Is(err, fs.ErrNotExist):
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("%w: %s: %w", domain.ErrDirectoryCreation, dir, err)
			}
		default:
			return fmt.Errorf("%w: %s: %w", domain.ErrDirectoryCreation, dir, err)
		}
	}
	return nil
}

// CheckDirs reports the first top-level directory that is missing or not a
// directory. Nothing is created.
func (p *Paths) CheckDirs() error {
	for _, id := range requiredDirs {
		dir := p.MustGet(id)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// IsTablesInstanceDataDirectory reports whether dir has the shape
// <root>/instances/<table>/<instance> used by the companion tables tooling
// for media attachments. Collect's own instances sit one level below
// instances/, so such directories must not be treated as collect content.
func (p *Paths) IsTablesInstanceDataDirectory(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return false
	}
	return parts[0] == relPaths[PathInstances] && parts[1] != "" && parts[2] != ""
}
