package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hogliux/collect/internal/collect"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatcher_NotifiesOnChanges(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w, err := New([]string{root}, func() { calls.Add(1) }, nil, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.xml"), []byte("<a/>"), 0o644))

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_PicksUpNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	w, err := New([]string{root}, func() { calls.Add(1) }, nil, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	sub := filepath.Join(root, "survey_2024-01-01_10-00-00")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	before := calls.Load()
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(sub, "instance.xml"), []byte("<data/>"), 0o644)
		return calls.Load() > before
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_SkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	tables := filepath.Join(root, "tables")
	require.NoError(t, os.Mkdir(tables, 0o755))

	var calls atomic.Int32
	skip := func(dir string) bool { return strings.HasPrefix(dir, tables) }
	w, err := New([]string{root}, func() { calls.Add(1) }, skip, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	require.NoError(t, os.WriteFile(filepath.Join(tables, "row.xml"), []byte("<r/>"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatcher_SkipsTablesInstanceData(t *testing.T) {
	paths, err := collect.NewPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, paths.CreateDirs())
	instances := paths.MustGet(collect.PathInstances)
	tablesDir := filepath.Join(instances, "census", "uuid-1")
	require.NoError(t, os.MkdirAll(tablesDir, 0o755))
	own := filepath.Join(instances, "household_2024-01-01_10-00-00")
	require.NoError(t, os.Mkdir(own, 0o755))

	var calls atomic.Int32
	w, err := New([]string{paths.MustGet(collect.PathForms), instances}, func() { calls.Add(1) }, paths.IsTablesInstanceDataDirectory, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	require.NoError(t, os.WriteFile(filepath.Join(tablesDir, "photo.jpg"), []byte("jpg"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, os.WriteFile(filepath.Join(own, "instance.xml"), []byte("<data/>"), 0o644))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, func() {}, nil, nil)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	w, err := New([]string{t.TempDir()}, func() {}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
