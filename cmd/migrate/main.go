package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/angelmondragon/ledgerz-backend/pkg/db"
	"github.com/angelmondragon/ledgerz-backend/pkg/logger"
	"github.com/angelmondragon/ledgerz-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for -cmd=create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (for -cmd=version)")
	flag.Parse()

	_ = godotenv.Load()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := context.Background()

	// create and validate work on files alone, no DB needed.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd, "dir": *dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail("connect database: %v", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail("extract sql.DB: %v", err)
	}

	logg.Info(ctx, "running migration command")
	if err := dispatch(ctx, sqlDB, *cmd, *dir, *version); err != nil {
		fail("%v", err)
	}
}

func dispatch(ctx context.Context, sqlDB *sql.DB, cmd, dir, version string) error {
	switch cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, dir, cmd)
	case "version":
		if version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dir, version)
	default:
		return fmt.Errorf("unknown -cmd value: %s", cmd)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
