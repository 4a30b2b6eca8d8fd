package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bibleschool-api/pkg/config"
	"github.com/noah-isme/bibleschool-api/pkg/database"
	"github.com/noah-isme/bibleschool-api/pkg/logger"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "migration timeout")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	migrator, err := database.NewMigrator(db.DB, logr)
	if err != nil {
		logr.Fatal("failed to prepare migrator", zap.Error(err))
	}

	switch command {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "version":
		var version int64
		version, err = migrator.Version(ctx)
		if err == nil {
			logr.Info("current schema version", zap.Int64("version", version))
		}
	default:
		logr.Fatal("unknown command, expected up|down|version", zap.String("command", command))
	}
	if err != nil {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
}
