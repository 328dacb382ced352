package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hogliux/collect/internal/adapter/filestore"
	"github.com/hogliux/collect/internal/adapter/httpserver"
	"github.com/hogliux/collect/internal/adapter/metrics"
	"github.com/hogliux/collect/internal/adapter/openrosa"
	"github.com/hogliux/collect/internal/adapter/postgres"
	"github.com/hogliux/collect/internal/adapter/redis"
	"github.com/hogliux/collect/internal/adapter/sqlite"
	"github.com/hogliux/collect/internal/adapter/watcher"
	"github.com/hogliux/collect/internal/app"
	"github.com/hogliux/collect/internal/collect"
	"github.com/hogliux/collect/internal/crypto"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/download"
	"github.com/hogliux/collect/internal/platform/config"
	"github.com/hogliux/collect/internal/platform/logging"
	"github.com/hogliux/collect/internal/platform/version"
	"github.com/hogliux/collect/internal/reset"
	"github.com/hogliux/collect/internal/settings"
)

const (
	sqliteFileName  = "collect.db"
	cookieFileName  = "cookies.json"
	generalPrefFile = "general_prefs.json"
	adminPrefFile   = "admin_prefs.json"
	httpTimeout     = 30 * time.Second
)

type storage struct {
	forms     domain.FormRepository
	instances domain.InstanceRepository
	health    httpserver.HealthCheck
	close     func()
}

type preferences struct {
	general domain.PreferenceStore
	admin   domain.PreferenceStore
	health  []httpserver.HealthCheck
	close   func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupPaths(cfg *config.Config) *collect.Paths {
	paths, err := collect.NewPaths(cfg.CollectRoot)
	if err != nil {
		slog.Error("Invalid collect root", "root", cfg.CollectRoot, "error", err)
		os.Exit(1)
	}
	if err := paths.CreateDirs(); err != nil {
		slog.Error("Cannot create collect directories", "error", err)
		os.Exit(1)
	}
	return paths
}

func setupStorage(ctx context.Context, cfg *config.Config, paths *collect.Paths, observer *metrics.StorageMetrics) storage {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, observer)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		return storage{
			forms:     postgres.NewFormRepo(pool),
			instances: postgres.NewInstanceRepo(pool),
			health:    httpserver.HealthCheck{Name: "postgres", Check: pool.Ping},
			close:     pool.Close,
		}
	default:
		path := filepath.Join(paths.MustGet(collect.PathMetadata), sqliteFileName)
		store, err := sqlite.Open(ctx, path, observer)
		if err != nil {
			slog.Error("Failed to open local database", "path", path, "error", err)
			os.Exit(1)
		}
		return storage{
			forms:     store.Forms(),
			instances: store.Instances(),
			health:    httpserver.HealthCheck{Name: "sqlite", Check: store.HealthCheck},
			close: func() {
				if err := store.Close(); err != nil {
					slog.Error("Failed to close local database", "error", err)
				}
			},
		}
	}
}

func setupPreferences(ctx context.Context, cfg *config.Config, paths *collect.Paths, m *metrics.StorageMetrics, b *metrics.BreakerMetrics) preferences {
	cryptoSvc, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, server password is stored in plain text")
	}

	var general, admin domain.PreferenceStore
	prefs := preferences{close: func() {}}

	switch cfg.PreferencesBackend {
	case config.PreferencesRedis:
		var rdb *goredis.Client
		rdb, err = redis.NewClient(ctx, cfg.RedisURL, m, redis.NewBreakerHook(b))
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		general = redis.NewPreferenceStore(rdb, domain.ScopeGeneral)
		admin = redis.NewPreferenceStore(rdb, domain.ScopeAdmin)
		prefs.health = append(prefs.health, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		prefs.close = func() { _ = rdb.Close() }
	default:
		metadata := paths.MustGet(collect.PathMetadata)
		general, err = filestore.Open(filepath.Join(metadata, generalPrefFile))
		if err != nil {
			slog.Error("Failed to open general preferences", "error", err)
			os.Exit(1)
		}
		admin, err = filestore.Open(filepath.Join(metadata, adminPrefFile))
		if err != nil {
			slog.Error("Failed to open admin preferences", "error", err)
			os.Exit(1)
		}
	}

	prefs.general = settings.NewEncryptedStore(general, settings.General, cryptoSvc)
	prefs.admin = settings.NewEncryptedStore(admin, settings.Admin, cryptoSvc)
	return prefs
}

// seedServerURL applies SERVER_URL on first start only. A URL set later
// through the API wins.
func seedServerURL(ctx context.Context, cfg *config.Config, general domain.PreferenceStore) {
	if cfg.ServerURL == "" {
		return
	}
	if _, ok, err := general.Get(ctx, settings.KeyServerURL); err != nil || ok {
		return
	}
	if err := general.Set(ctx, settings.KeyServerURL, domain.StringValue(cfg.ServerURL)); err != nil {
		slog.Warn("Failed to seed server URL", "error", err)
	}
}

func deviceID(cfg *config.Config) string {
	if cfg.DeviceID != "" {
		return cfg.DeviceID
	}
	id := uuid.NewString()
	slog.Info("DEVICE_ID not set, using a random device id", "device_id", id)
	return id
}

func runGracefulShutdown(srv *httpserver.Server, appSvc *app.Service, orchestrator *download.Orchestrator, fw *watcher.Watcher, session *collect.Session) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if fw != nil {
			if err := fw.Close(); err != nil {
				slog.Error("File watcher shutdown error", "error", err)
			}
		}
		if err := orchestrator.Shutdown(shutdownCtx); err != nil {
			slog.Error("Download shutdown error", "error", err)
		}
		appSvc.Stop()
		if err := session.Save(); err != nil {
			slog.Error("Failed to save cookies", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	paths := setupPaths(cfg)

	reg := metrics.NewRegistry()
	storageMetrics := metrics.NewStorageMetrics(reg)
	breakerMetrics := metrics.NewBreakerMetrics(reg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store := setupStorage(ctx, cfg, paths, storageMetrics)
	defer store.close()
	prefs := setupPreferences(ctx, cfg, paths, storageMetrics, breakerMetrics)
	defer prefs.close()
	seedServerURL(ctx, cfg, prefs.general)
	cancel()

	creds := collect.NewAgingCredentials(clock, cfg.CredentialsTTL)
	session, err := collect.NewSession(filepath.Join(paths.MustGet(collect.PathMetadata), cookieFileName), creds, httpTimeout)
	if err != nil {
		slog.Error("Failed to open HTTP session", "error", err)
		os.Exit(1)
	}

	id := deviceID(cfg)
	activity := collect.NewActivityLogger(slog.Default(), id, reg, func(ctx context.Context) bool {
		on, err := settings.Bool(ctx, prefs.general, settings.General, settings.KeyLogActivity)
		return err == nil && on
	})
	appCtx := &collect.Context{
		Paths:    paths,
		Session:  session,
		Activity: activity,
		Clock:    clock,
		DeviceID: id,
		AppName:  version.VersionedAppName(),
	}

	client := openrosa.NewClient(openrosa.Config{
		Session: session,
		FormList: func(ctx context.Context) (string, error) {
			return settings.FormListURL(ctx, prefs.general)
		},
		Forms:    store.forms,
		FormsDir: paths.MustGet(collect.PathForms),
		Clock:    clock,
		Logger:   slog.Default(),
		Observer: breakerMetrics,
	})

	orchestrator := download.NewOrchestrator(download.Config{
		Connectivity: client,
		Manifest:     client,
		Downloader:   client,
		Clock:        clock,
		Deadline:     cfg.DownloadDeadline,
		Logger:       slog.Default(),
		Metrics:      metrics.NewDownloadMetrics(reg),
	})

	resetter := reset.New(reset.Config{
		Paths:        paths,
		General:      prefs.general,
		Forms:        store.forms,
		Instances:    store.instances,
		TileCacheDir: cfg.TileCacheDir,
		Logger:       slog.Default(),
	})

	appSvc := app.NewService(app.Config{
		Context:   appCtx,
		General:   prefs.general,
		Admin:     prefs.admin,
		Forms:     store.forms,
		Instances: store.instances,
		Downloads: orchestrator,
		Resetter:  resetter,
		Gate:      settings.NewAdminGate(prefs.admin, settings.DefaultAttemptLimit(), activity),
		Logger:    slog.Default(),
	})
	if err := appSvc.Start(context.Background()); err != nil {
		slog.Error("Failed to start menu service", "error", err)
		os.Exit(1)
	}

	fw, err := watcher.New(
		[]string{paths.MustGet(collect.PathForms), paths.MustGet(collect.PathInstances)},
		appSvc.Notify,
		paths.IsTablesInstanceDataDirectory,
		slog.Default(),
	)
	if err != nil {
		// Counters still refresh on API mutations.
		slog.Warn("File watcher not started", "error", err)
	}

	healthChecks := append([]httpserver.HealthCheck{store.health}, prefs.health...)
	healthChecks = append(healthChecks, httpserver.HealthCheck{
		Name:  "collect_dirs",
		Check: func(context.Context) error { return paths.CheckDirs() },
	})
	srv := httpserver.NewServer(cfg, appSvc, httpserver.Metrics{
		HTTP:     metrics.NewHTTPMetrics(reg),
		Stream:   metrics.NewStreamMetrics(reg),
		Registry: metrics.Handler(reg),
	}, healthChecks)

	done := runGracefulShutdown(srv, appSvc, orchestrator, fw, session)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
