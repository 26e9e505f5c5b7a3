// Package statspostgres keeps per-owner colorization counters in Postgres
package statspostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/wb-go/wbf/dbpg"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

// ApplyEvent increments owner counters once per job id.
func (p PostgresRepo) ApplyEvent(ctx context.Context, ev model.JobEvent) (applied bool, err error) {
	tx, err := p.DB.Master.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	// отметка о применении события - защита от повторной доставки из кафки
	res, err := tx.ExecContext(ctx, `INSERT INTO applied_job_events (job_id) VALUES ($1) ON CONFLICT DO NOTHING`, ev.JobID)
	if err != nil {
		return false, fmt.Errorf("mark event %q: %w", ev.JobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	succeeded, failed := 0, 0
	if ev.Status == model.StatusSucceeded {
		succeeded = 1
	} else {
		failed = 1
	}

	query := `INSERT INTO owner_stats (owner_id, total, succeeded, failed, last_job_at)
	VALUES ($1, 1, $2, $3, $4)
	ON CONFLICT (owner_id) DO UPDATE SET
		total = owner_stats.total + 1,
		succeeded = owner_stats.succeeded + EXCLUDED.succeeded,
		failed = owner_stats.failed + EXCLUDED.failed,
		last_job_at = GREATEST(owner_stats.last_job_at, EXCLUDED.last_job_at)`
	if _, err = tx.ExecContext(ctx, query, ev.OwnerID, succeeded, failed, ev.CreatedAt); err != nil {
		return false, fmt.Errorf("upsert stats for %q: %w", ev.OwnerID, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit stats for %q: %w", ev.OwnerID, err)
	}
	return true, nil
}

func (p PostgresRepo) GetStats(ctx context.Context, ownerID string) (*model.OwnerStats, error) {
	query := `SELECT owner_id, total, succeeded, failed, last_job_at
	FROM owner_stats
	WHERE owner_id = $1`

	var (
		stats  model.OwnerStats
		lastAt sql.NullTime
	)
	err := p.DB.QueryRowContext(ctx, query, ownerID).Scan(&stats.OwnerID,
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&lastAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return &model.OwnerStats{OwnerID: ownerID}, nil // владелец без задач - не ошибка
		default:
			return nil, err
		}
	}
	if lastAt.Valid {
		t := lastAt.Time.UTC()
		stats.LastJobAt = &t
	}
	return &stats, nil
}
