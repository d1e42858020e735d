// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/leaguedesk/internal/api/auth"
	"github.com/codr1/leaguedesk/internal/api/categories"
	"github.com/codr1/leaguedesk/internal/api/matches"
	"github.com/codr1/leaguedesk/internal/backend"
	"github.com/codr1/leaguedesk/internal/config"
	"github.com/codr1/leaguedesk/internal/db"
	"github.com/codr1/leaguedesk/internal/livehub"
	"github.com/codr1/leaguedesk/internal/matchphase"
	"github.com/codr1/leaguedesk/internal/ratelimit"
	"github.com/codr1/leaguedesk/internal/scheduler"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DefaultContextLogger = &log.Logger
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "config/config.yaml"), "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)
	tenant := cfg.ActiveTenantSlug()
	log.Logger = log.With().Str("app", cfg.App.Name).Logger()
	if tenant != "" {
		log.Logger = log.With().Str("tenant", tenant).Logger()
	}

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	journal, err := db.NewJournal(database, tenant)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create match journal")
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendBaseURL(),
		Token:   cfg.Backend.Token,
		Tenant:  tenant,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backend client")
	}

	hub := livehub.NewHub()
	registry, err := matchphase.NewRegistry(matchphase.RegistryConfig{
		Source:             client,
		Observer:           hub,
		Journal:            journal,
		RefreshConcurrency: cfg.Poller.Concurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create match registry")
	}

	auth.InitClerk(cfg.Auth.SecretKey)
	categories.InitHandlers(client, cfg.Location())
	matches.InitHandlers(registry, journal)

	if err := setupScheduler(cfg, registry, journal); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up scheduler")
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Window:         cfg.RateLimit.Window,
		MaxPerOperator: cfg.RateLimit.MaxPerOperator,
		MaxPerIP:       cfg.RateLimit.MaxPerIP,
	})
	defer limiter.Close()

	server := newServer(cfg, hub, registry, limiter)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

func setupScheduler(cfg *config.Config, registry *matchphase.Registry, journal *db.Journal) error {
	if err := scheduler.Init(); err != nil {
		return err
	}
	if cfg.Poller.Enabled {
		if err := scheduler.RegisterLiveMatchRefresh(registry, cfg.Poller.Cron); err != nil {
			return fmt.Errorf("register live match refresh: %w", err)
		}
	} else {
		log.Info().Msg("Live match poller disabled")
	}
	if err := scheduler.RegisterJournalPrune(journal, cfg.Journal.Retention, cfg.Journal.PruneCron); err != nil {
		return fmt.Errorf("register journal prune: %w", err)
	}
	return scheduler.Start()
}
