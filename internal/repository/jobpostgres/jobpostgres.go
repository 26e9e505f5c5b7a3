package jobpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

func (p PostgresRepo) Create(ctx context.Context, j *model.Job) error {
	query := `INSERT INTO colorization_jobs (id, owner_id, original_image, colorized_image, model_id, status, error_kind, error_detail, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`
	_, err := p.DB.Master.ExecContext(ctx, query,
		j.ID,
		j.OwnerID,
		j.OriginalImage,
		j.ColorizedImage,
		j.ModelID,
		j.Status,
		j.ErrorKind,
		j.ErrorDetail,
		j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job %q: %w", j.ID, err)
	}
	return nil
}

func (p PostgresRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT id, owner_id, original_image, COALESCE(colorized_image, ''), model_id, status, COALESCE(error_kind, ''), COALESCE(error_detail, ''), created_at
	FROM colorization_jobs
	WHERE id = $1`

	job, err := scanJob(p.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrJobNotFound // 404
		default:
			return nil, err // 500
		}
	}
	return job, nil
}

func (p PostgresRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Job, error) {
	query := `SELECT id, owner_id, original_image, COALESCE(colorized_image, ''), model_id, status, COALESCE(error_kind, ''), COALESCE(error_detail, ''), created_at
	FROM colorization_jobs
	WHERE owner_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`

	rows, err := p.DB.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("Error while closing *sql.Rows after scanning")
		}
	}()

	jobs := make([]model.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return jobs, nil
}

func (p PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM colorization_jobs
	WHERE id = $1`

	res, err := p.DB.Master.ExecContext(ctx, query, id)
	if err != nil {
		return err // 500
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrJobNotFound // 404
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*model.Job, error) {
	var job model.Job
	if err := s.Scan(&job.ID,
		&job.OwnerID,
		&job.OriginalImage,
		&job.ColorizedImage,
		&job.ModelID,
		&job.Status,
		&job.ErrorKind,
		&job.ErrorDetail,
		&job.CreatedAt); err != nil {
		return nil, err
	}
	job.CreatedAt = job.CreatedAt.UTC()
	return &job, nil
}
