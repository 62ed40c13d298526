package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
)

// DatasetRepositoryInterface stores datasets in their raw encoding.
// Decoding into columns and rows is the caller's job.
type DatasetRepositoryInterface interface {
	Create(ctx context.Context, d *model.Dataset) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Dataset, error)
	List(ctx context.Context, f ListFilter) ([]*model.Dataset, int, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	// UpdateEncoding rewrites both raw columns in one statement.
	UpdateEncoding(ctx context.Context, id uuid.UUID, rawColumns, rawRows string, processedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type DatasetRepository struct {
	DB *sql.DB
}

const datasetColumns = `id, owner_group_id, name, columns_raw, rows_raw, created_at, processed_at`

func scanDataset(s scanner) (*model.Dataset, error) {
	var d model.Dataset
	if err := s.Scan(&d.ID, &d.OwnerGroupID, &d.Name, &d.RawColumns, &d.RawRows, &d.CreatedAt, &d.ProcessedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DatasetRepository) Create(ctx context.Context, d *model.Dataset) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO datasets (id, owner_group_id, name, columns_raw, rows_raw, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.OwnerGroupID, d.Name, d.RawColumns, d.RawRows, d.CreatedAt, d.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Dataset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id=$1`, id)
	d, err := scanDataset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("dataset", id)
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return d, nil
}

func (r *DatasetRepository) List(ctx context.Context, f ListFilter) ([]*model.Dataset, int, error) {
	w := newWhere()
	w.owner(f)

	query, args := w.page(`SELECT `+datasetColumns+` FROM datasets`, f)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []*model.Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`+w.clause, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count datasets: %w", err)
	}
	return datasets, total, nil
}

func (r *DatasetRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE datasets SET name=$1 WHERE id=$2`, name, id)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}
	return requireAffected(res, "dataset", id)
}

func (r *DatasetRepository) UpdateEncoding(ctx context.Context, id uuid.UUID, rawColumns, rawRows string, processedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE datasets SET columns_raw=$1, rows_raw=$2, processed_at=$3 WHERE id=$4`,
		rawColumns, rawRows, processedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to rewrite dataset encoding: %w", err)
	}
	return requireAffected(res, "dataset", id)
}

func (r *DatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM datasets WHERE id=$1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.NewInvalidState("dataset", id, "in use", "delete")
		}
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return requireAffected(res, "dataset", id)
}

func requireAffected(res sql.Result, entity string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewNotFound(entity, id)
	}
	return nil
}

var _ DatasetRepositoryInterface = (*DatasetRepository)(nil)
