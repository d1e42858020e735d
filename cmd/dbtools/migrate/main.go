// cmd/dbtools/migrate/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/config"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to YAML configuration; supplies the database path")
		dbPath         = flag.String("db", "", "Path to SQLite database (overrides -config)")
		migrationsPath = flag.String("migrations", "internal/db/migrations", "Path to migrations directory")
		command        = flag.String("command", "", "Command to run (up, down, steps, version)")
		steps          = flag.Int("n", 1, "Number of steps for the steps command; negative rolls back")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	path, err := resolveDBPath(*dbPath, *configPath)
	if err != nil || *command == "" {
		if err != nil {
			log.Error().Err(err).Msg("Cannot resolve database path")
		}
		flag.Usage()
		os.Exit(1)
	}

	absMigrations, err := filepath.Abs(*migrationsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid migrations path")
	}
	if _, err := os.Stat(absMigrations); os.IsNotExist(err) {
		log.Fatal().Str("path", absMigrations).Msg("Migrations directory does not exist")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create database directory")
	}

	m, err := migrate.New(
		fmt.Sprintf("file://%s", absMigrations),
		fmt.Sprintf("sqlite3://%s", path),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration init failed")
	}
	defer m.Close()

	logger := log.With().Str("db", path).Str("command", *command).Logger()
	switch *command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(*steps)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			logger.Fatal().Err(verr).Msg("Get version failed")
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
		return
	default:
		logger.Fatal().Msg("Unknown command")
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Msg("Migration failed")
	}
	logger.Info().Msg("Migration complete")
}

func resolveDBPath(dbPath, configPath string) (string, error) {
	if dbPath != "" {
		return filepath.Abs(dbPath)
	}
	if configPath == "" {
		return "", errors.New("one of -db or -config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return filepath.Abs(cfg.Database.Filename)
}
