package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/pitstock/pitstock/internal/api"
	"github.com/pitstock/pitstock/internal/config"
	"github.com/pitstock/pitstock/internal/database"
	"github.com/pitstock/pitstock/internal/jobs"
	"github.com/pitstock/pitstock/internal/logger"
	"github.com/pitstock/pitstock/internal/pos"
	"github.com/pitstock/pitstock/internal/secrets"
	"github.com/pitstock/pitstock/internal/seed"
	"github.com/pitstock/pitstock/internal/settings"
	"github.com/pitstock/pitstock/internal/websocket"
)

func main() {
	// .env is optional, for development convenience
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("database", cfg.Database.Path).
		Msg("starting PitStock")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	clock := clockwork.NewRealClock()
	settingsService := settings.NewService(db.Conn())

	secretStore, err := bootstrapSecretStore(settingsService, cfg.Auth.PIN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize secret store")
	}

	runtime, err := jobs.NewGocronRuntime(clock, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create job runtime")
	}

	hub := websocket.NewHub()
	go hub.Run()

	server, err := api.NewServer(db.Conn(), hub, cfg, clock, runtime, secretStore, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	ctx := context.Background()

	// First run against an empty database picks up the optional seed
	// file, so the locations below get resets armed like any other.
	seedLoader := seed.NewLoader(server.CatalogService(), server.TemplateService(), log.Logger)
	if err := seedLoader.Apply(ctx, cfg.Database.SeedPath); err != nil {
		log.Fatal().Err(err).Msg("failed to apply seed file")
	}

	// Reclaim jobs a previous process left RUNNING, then re-arm resets
	// and resume any interrupted stock pushes.
	staleAfter := time.Duration(cfg.Jobs.StaleRunningMinutes) * time.Minute
	if reaped, err := server.JobsRepository().ReapStale(ctx, staleAfter); err != nil {
		log.Error().Err(err).Msg("failed to reap stale jobs")
	} else if reaped > 0 {
		log.Warn().Int64("count", reaped).Msg("reclaimed stale running jobs")
	}
	if err := server.ResetScheduler().ScheduleAll(ctx); err != nil {
		log.Error().Err(err).Msg("failed to arm daily resets")
	}
	if err := server.ApplyQueue().Kick(); err != nil {
		log.Error().Err(err).Msg("failed to resume apply queue")
	}

	// Periodic maintenance: stale-job reaper and POS catalog sync.
	err = runtime.SubmitCron("job_reaper", "*/10 * * * *", func(ctx context.Context) error {
		_, err := server.JobsRepository().ReapStale(ctx, staleAfter)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to register job reaper")
	}
	err = runtime.SubmitCron("catalog_sync", cfg.Jobs.CatalogSyncCron, func(ctx context.Context) error {
		return syncAllCatalogs(ctx, server)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to register catalog sync")
	}

	runtime.Start()

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := runtime.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop job runtime")
	}
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to shut down server")
	}
}

// bootstrapSecretStore loads (or creates) the salt for the credential
// cipher and builds the store around the configured PIN.
func bootstrapSecretStore(svc *settings.Service, pin string) (*secrets.Store, error) {
	ctx := context.Background()

	var salt []byte
	stored, err := svc.Get(ctx, settings.KeySecretSalt)
	switch {
	case err == nil:
		salt, err = hex.DecodeString(stored)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, settings.ErrNotFound):
		salt, err = secrets.GenerateSalt()
		if err != nil {
			return nil, err
		}
		if err := svc.Set(ctx, settings.KeySecretSalt, hex.EncodeToString(salt)); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if pin == "" {
		pin = "pitstock-local"
	}
	return secrets.NewStore(pin, salt), nil
}

// syncAllCatalogs refreshes every location's items from the POS. Skipped
// entirely until a POS account is linked.
func syncAllCatalogs(ctx context.Context, server *api.Server) error {
	catalogSvc := server.CatalogService()
	locs, err := catalogSvc.ListLocations(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, loc := range locs {
		if _, err := catalogSvc.SyncItems(ctx, loc.ID); err != nil {
			if errors.Is(err, pos.ErrNotLinked) {
				return nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
