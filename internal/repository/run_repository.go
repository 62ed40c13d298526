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

type RunRepositoryInterface interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Run, error)
	List(ctx context.Context, f ListFilter) ([]*model.Run, int, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error

	// MarkProcessing moves a pending run to processing. Any other status
	// yields an InvalidStateError and leaves the run untouched.
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.Run, error)
	// Finish moves a processing run to a terminal status.
	Finish(ctx context.Context, id uuid.UUID, status model.RunStatus, generated int, completedAt time.Time) error

	// Delete removes the run with its email logs, campaigns and
	// certificates in one transaction, whatever the run status.
	Delete(ctx context.Context, id uuid.UUID) (*RunDeleteResult, error)
}

type RunRepository struct {
	DB *sql.DB
}

const runColumns = `id, owner_group_id, name, template_id, dataset_id, name_column, email_column,
	status, total_rows, certificates_generated, created_at, started_at, completed_at`

func scanRun(s scanner) (*model.Run, error) {
	var r model.Run
	err := s.Scan(&r.ID, &r.OwnerGroupID, &r.Name, &r.TemplateID, &r.DatasetID, &r.NameColumn, &r.EmailColumn,
		&r.Status, &r.TotalRows, &r.CertificatesGenerated, &r.CreatedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *RunRepository) Create(ctx context.Context, run *model.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = model.RunPending
	}
	run.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO runs (id, owner_group_id, name, template_id, dataset_id, name_column, email_column,
			status, total_rows, certificates_generated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.OwnerGroupID, run.Name, run.TemplateID, run.DatasetID, run.NameColumn, run.EmailColumn,
		run.Status, run.TotalRows, run.CertificatesGenerated, run.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.NewNotFound("template or dataset", run.TemplateID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Run, error) {
	run, err := scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("run", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) List(ctx context.Context, f ListFilter) ([]*model.Run, int, error) {
	w := newWhere()
	w.owner(f)

	query, args := w.page(`SELECT `+runColumns+` FROM runs`, f)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+w.clause, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return runs, total, nil
}

func (r *RunRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE runs SET name=$1 WHERE id=$2`, name, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return requireAffected(res, "run", id)
}

func (r *RunRepository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.Run, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE runs SET status=$1, started_at=$2
		WHERE id=$3 AND status=$4
		RETURNING `+runColumns,
		model.RunProcessing, startedAt, id, model.RunPending,
	)
	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark run processing: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, appErrors.NewInvalidState("run", id, string(current.Status), "execute")
}

func (r *RunRepository) Finish(ctx context.Context, id uuid.UUID, status model.RunStatus, generated int, completedAt time.Time) error {
	if !model.CanTransition(model.RunProcessing, status) {
		return fmt.Errorf("run status %q is not terminal", status)
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE runs SET status=$1, certificates_generated=$2, completed_at=$3
		WHERE id=$4 AND status=$5`,
		status, generated, completedAt, id, model.RunProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return appErrors.NewInvalidState("run", id, string(current.Status), "finish")
	}
	return nil
}

func (r *RunRepository) Delete(ctx context.Context, id uuid.UUID) (*RunDeleteResult, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run delete: %w", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM runs WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("run", id)
		}
		return nil, fmt.Errorf("failed to lock run: %w", err)
	}
	result := &RunDeleteResult{}
	steps := []struct {
		query string
		count *int
	}{
		{`DELETE FROM email_logs
			WHERE campaign_id IN (SELECT id FROM email_campaigns WHERE run_id=$1)
			   OR certificate_id IN (SELECT id FROM certificates WHERE run_id=$1)`, &result.EmailLogsDeleted},
		{`DELETE FROM email_campaigns WHERE run_id=$1`, &result.CampaignsDeleted},
		{`DELETE FROM certificates WHERE run_id=$1`, &result.CertificatesDeleted},
		{`DELETE FROM runs WHERE id=$1`, nil},
	}
	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete run %s: %w", id, err)
		}
		if step.count != nil {
			n, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			*step.count = int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run delete: %w", err)
	}
	return result, nil
}

var _ RunRepositoryInterface = (*RunRepository)(nil)
