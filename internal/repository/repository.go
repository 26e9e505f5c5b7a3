// Package repository provides methods to work with DB
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/UnendingLoop/Colorizer/internal/repository/jobpostgres"
	"github.com/UnendingLoop/Colorizer/internal/repository/statspostgres"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// JobRepo - хранилище записей о колоризациях, без бизнес-логики
type JobRepo interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Job, error)
	Delete(ctx context.Context, id string) error
}

// StatsRepo - счетчики по владельцам, пополняются из событий
type StatsRepo interface {
	// ApplyEvent returns false when the event was already applied earlier.
	ApplyEvent(ctx context.Context, ev model.JobEvent) (bool, error)
	GetStats(ctx context.Context, ownerID string) (*model.OwnerStats, error)
}

func NewPostgresJobRepo(dbconn *dbpg.DB) JobRepo {
	return jobpostgres.PostgresRepo{DB: dbconn}
}

func NewPostgresStatsRepo(dbconn *dbpg.DB) StatsRepo {
	return statspostgres.PostgresRepo{DB: dbconn}
}

func ConnectWithRetries(dsn string, retryCount int, idleTime time.Duration) (*dbpg.DB, error) {
	dbOptions := dbpg.Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 10 * time.Minute,
	}
	var dbConn *dbpg.DB
	attempt := 0
	err := retry.Do(func() error {
		attempt++
		conn, err := dbpg.New(dsn, nil, &dbOptions)
		if err == nil {
			err = conn.Master.Ping()
		}
		if err != nil {
			zlog.Logger.Warn().Err(err).Int("attempt", attempt).Msgf("Failed to connect to PGDB, waiting %v before next retry...", idleTime)
			return err
		}
		dbConn = conn
		return nil
	}, retry.Strategy{Attempts: max(retryCount, 1), Delay: idleTime, Backoff: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", attempt, err)
	}
	return dbConn, nil
}

func MigrateWithRetries(db *sql.DB, migrationsPath string, retries int, idle time.Duration) error {
	attempt := 0
	err := retry.Do(func() error {
		attempt++
		zlog.Logger.Info().Msgf("Migration try #%d...", attempt)
		if err := runMigrate(db, migrationsPath); err != nil {
			zlog.Logger.Warn().Err(err).Msgf("Migration try #%d was unsuccessful. Waiting %v before next try...", attempt, idle)
			return err
		}
		return nil
	}, retry.Strategy{Attempts: max(retries, 1), Delay: idle, Backoff: 1})
	if err != nil {
		return fmt.Errorf("out of migration retries: %w", err)
	}
	return nil
}

func runMigrate(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}

	sourceURL := "file://" + absPath
	zlog.Logger.Info().Str("source", sourceURL).Msg("Running migrations")

	m, err := migrate.NewWithDatabaseInstance(
		sourceURL,
		"postgres",
		driver,
	)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	zlog.Logger.Info().Msg("Database migrations applied successfully")
	return nil
}
