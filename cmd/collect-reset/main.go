package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hogliux/collect/internal/adapter/filestore"
	"github.com/hogliux/collect/internal/adapter/postgres"
	"github.com/hogliux/collect/internal/adapter/redis"
	"github.com/hogliux/collect/internal/adapter/sqlite"
	"github.com/hogliux/collect/internal/collect"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/reset"
)

func main() {
	var (
		root      = flag.String("root", os.Getenv("COLLECT_ROOT"), "Collect root directory (or set COLLECT_ROOT env)")
		actions   = flag.String("actions", "", "Comma-separated categories: "+strings.Join(actionNames(), ","))
		database  = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL; the local SQLite store is used when empty")
		redisURL  = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL for preferences; the local preference file is used when empty")
		tileCache = flag.String("tile-cache", os.Getenv("TILE_CACHE_DIR"), "Map tile cache directory")
		dryRun    = flag.Bool("dry-run", false, "Dry run mode (report the categories, change nothing)")
		verbose   = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *root == "" {
		log.Fatal("Collect root required (--root or COLLECT_ROOT env)")
	}
	requested, err := parseActions(*actions)
	if err != nil {
		log.Fatal(err)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	paths, err := collect.NewPaths(*root)
	if err != nil {
		log.Fatalf("Invalid collect root: %v", err)
	}

	if *dryRun {
		for _, a := range requested {
			slog.Info("Would reset", "category", a.String())
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	forms, instances, closeStore, err := openStorage(ctx, paths, *database)
	if err != nil {
		log.Fatalf("Failed to open records: %v", err)
	}
	defer closeStore()

	general, closePrefs, err := openPreferences(ctx, paths, *redisURL)
	if err != nil {
		log.Fatalf("Failed to open preferences: %v", err)
	}
	defer closePrefs()

	start := time.Now()
	failed := reset.New(reset.Config{
		Paths:        paths,
		General:      general,
		Forms:        forms,
		Instances:    instances,
		TileCacheDir: *tileCache,
		Logger:       slog.Default(),
	}).Reset(ctx, requested)

	slog.Info("Reset summary",
		"requested", len(requested),
		"failed", len(failed),
		"duration_ms", time.Since(start).Milliseconds())

	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, a := range failed {
			names[i] = a.String()
		}
		fmt.Fprintf(os.Stderr, "reset failed for: %s\n", strings.Join(names, ", "))
		closeStore()
		closePrefs()
		os.Exit(1)
	}
}

func actionNames() []string {
	all := domain.AllResetActions()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.String()
	}
	return names
}

// parseActions reads a comma-separated category list. "all" selects every
// category.
func parseActions(s string) ([]domain.ResetAction, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no categories given (--actions %s)", strings.Join(actionNames(), ","))
	}
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return domain.AllResetActions(), nil
	}

	var out []domain.ResetAction
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		a, err := domain.ParseResetAction(part)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no categories given (--actions %s)", strings.Join(actionNames(), ","))
	}
	return out, nil
}

func openStorage(ctx context.Context, paths *collect.Paths, databaseURL string) (domain.FormRepository, domain.InstanceRepository, func(), error) {
	if databaseURL != "" {
		pool, err := postgres.Connect(ctx, databaseURL, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("Connected to Postgres", "url", redactURL(databaseURL))
		return postgres.NewFormRepo(pool), postgres.NewInstanceRepo(pool), pool.Close, nil
	}

	store, err := sqlite.Open(ctx, filepath.Join(paths.MustGet(collect.PathMetadata), "collect.db"), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return store.Forms(), store.Instances(), func() { _ = store.Close() }, nil
}

func openPreferences(ctx context.Context, paths *collect.Paths, redisURL string) (domain.PreferenceStore, func(), error) {
	if redisURL != "" {
		rdb, err := redis.NewClient(ctx, redisURL, nil, nil)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Connected to Redis", "url", redactURL(redisURL))
		return redis.NewPreferenceStore(rdb, domain.ScopeGeneral), func() { _ = rdb.Close() }, nil
	}

	store, err := filestore.Open(filepath.Join(paths.MustGet(collect.PathMetadata), "general_prefs.json"))
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// redactURL masks the password of a connection URL. Key/value DSNs are not
// URLs and are hidden entirely.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[redacted dsn]"
	}
	return u.Redacted()
}
