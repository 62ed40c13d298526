package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error)
	List(ctx context.Context, f ListFilter) ([]*model.Template, int, error)
	Update(ctx context.Context, t *model.Template) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, owner_group_id, name, document, detected_fields, created_at, updated_at`

func scanTemplate(s scanner) (*model.Template, error) {
	var t model.Template
	err := s.Scan(&t.ID, &t.OwnerGroupID, &t.Name, &t.Document, pq.Array(&t.DetectedFields), &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.DetectedFields == nil {
		t.DetectedFields = []string{}
	}
	return &t, nil
}

func detectedOrEmpty(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO templates (id, owner_group_id, name, document, detected_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.OwnerGroupID, t.Name, t.Document, pq.Array(detectedOrEmpty(t.DetectedFields)), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=$1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("template", id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepository) List(ctx context.Context, f ListFilter) ([]*model.Template, int, error) {
	w := newWhere()
	w.owner(f)

	query, args := w.page(`SELECT `+templateColumns+` FROM templates`, f)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []*model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`+w.clause, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return templates, total, nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.Template) error {
	t.UpdatedAt = time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE templates SET name=$1, document=$2, detected_fields=$3, updated_at=$4
		WHERE id=$5`,
		t.Name, t.Document, pq.Array(detectedOrEmpty(t.DetectedFields)), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return requireAffected(res, "template", t.ID)
}

func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=$1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.NewInvalidState("template", id, "in use", "delete")
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return requireAffected(res, "template", id)
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
