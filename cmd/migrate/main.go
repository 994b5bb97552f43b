package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"tgcord/internal/migrations"
	"tgcord/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	dbPath := flag.String("db", "./tgcord.db", "Path to the database file")
	status := flag.Bool("status", false, "List applied migrations without changing anything")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := run(*dbPath, *status, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(dbPath string, statusOnly bool, logger *logrus.Logger) error {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if statusOnly {
		return printStatus(ctx, db, logger)
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.Info("Schema is up to date")
		return nil
	}
	logger.WithField("versions", applied).Info("Migrations applied")
	return nil
}

func printStatus(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	all, err := migrations.All()
	if err != nil {
		return err
	}

	for _, m := range all {
		var appliedAt sql.NullString
		err := db.QueryRowContext(ctx, "SELECT applied_at FROM schema_migrations WHERE version = ?", m.Version).Scan(&appliedAt)
		switch {
		case err == sql.ErrNoRows:
			logger.WithField("migration", m.Name).Info("pending")
		case err != nil:
			return fmt.Errorf("failed to read migration status: %w", err)
		default:
			logger.WithFields(logrus.Fields{"migration": m.Name, "applied_at": appliedAt.String}).Info("applied")
		}
	}
	return nil
}
