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

// CertificateFilter narrows a certificate listing. Zero fields match all.
type CertificateFilter struct {
	ListFilter
	RunID  *uuid.UUID
	Status model.CertificateStatus
}

type CertificateRepositoryInterface interface {
	Create(ctx context.Context, c *model.Certificate) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error)
	List(ctx context.Context, f CertificateFilter) ([]*model.Certificate, int, error)
	// ListByRun returns the run's certificates with the given status in row order.
	ListByRun(ctx context.Context, runID uuid.UUID, status model.CertificateStatus) ([]*model.Certificate, error)
	CountByRun(ctx context.Context, runID uuid.UUID, status model.CertificateStatus) (int, error)
	Update(ctx context.Context, c *model.Certificate) error
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type CertificateRepository struct {
	DB *sql.DB
}

const certificateColumns = `id, run_id, owner_group_id, template_id, dataset_id, row_index, row_data,
	subject_name, rendered_content, rendered_document_ref, status, verification_url, verified_at,
	email_sent, email_recipient, created_at`

func scanCertificate(s scanner) (*model.Certificate, error) {
	var c model.Certificate
	var rowData []byte
	err := s.Scan(&c.ID, &c.RunID, &c.OwnerGroupID, &c.TemplateID, &c.DatasetID, &c.RowIndex, &rowData,
		&c.SubjectName, &c.RenderedContent, &c.RenderedDocumentRef, &c.Status, &c.VerificationURL, &c.VerifiedAt,
		&c.EmailSent, &c.EmailRecipient, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.RowData = rowData
	return &c, nil
}

func rowDataOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func (r *CertificateRepository) Create(ctx context.Context, c *model.Certificate) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CertificateCompleted
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO certificates (id, run_id, owner_group_id, template_id, dataset_id, row_index, row_data,
			subject_name, rendered_content, rendered_document_ref, status, verification_url, verified_at,
			email_sent, email_recipient, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.RunID, c.OwnerGroupID, c.TemplateID, c.DatasetID, c.RowIndex, rowDataOrEmpty(c.RowData),
		c.SubjectName, c.RenderedContent, c.RenderedDocumentRef, c.Status, c.VerificationURL, c.VerifiedAt,
		c.EmailSent, c.EmailRecipient, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	c, err := scanCertificate(r.DB.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("certificate", id)
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return c, nil
}

func (r *CertificateRepository) List(ctx context.Context, f CertificateFilter) ([]*model.Certificate, int, error) {
	w := newWhere()
	w.owner(f.ListFilter)
	if f.RunID != nil {
		w.add("run_id=$%d", *f.RunID)
	}
	if f.Status != "" {
		w.add("status=$%d", f.Status)
	}

	query, args := w.page(`SELECT `+certificateColumns+` FROM certificates`, f.ListFilter)
	certs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`+w.clause, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count certificates: %w", err)
	}
	return certs, total, nil
}

func (r *CertificateRepository) ListByRun(ctx context.Context, runID uuid.UUID, status model.CertificateStatus) ([]*model.Certificate, error) {
	return r.query(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE run_id=$1 AND status=$2 ORDER BY row_index ASC`,
		runID, status,
	)
}

func (r *CertificateRepository) query(ctx context.Context, query string, args ...any) ([]*model.Certificate, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}
	defer rows.Close()

	certs := []*model.Certificate{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}

func (r *CertificateRepository) CountByRun(ctx context.Context, runID uuid.UUID, status model.CertificateStatus) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificates WHERE run_id=$1 AND status=$2`, runID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count certificates: %w", err)
	}
	return n, nil
}

func (r *CertificateRepository) Update(ctx context.Context, c *model.Certificate) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE certificates
		SET subject_name=$1, rendered_document_ref=$2, status=$3, verified_at=$4, email_recipient=$5
		WHERE id=$6`,
		c.SubjectName, c.RenderedDocumentRef, c.Status, c.VerifiedAt, c.EmailRecipient, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update certificate: %w", err)
	}
	return requireAffected(res, "certificate", c.ID)
}

func (r *CertificateRepository) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE certificates SET email_sent=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark certificate emailed: %w", err)
	}
	return requireAffected(res, "certificate", id)
}

func (r *CertificateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin certificate delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM email_logs WHERE certificate_id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete certificate logs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM certificates WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}
	if err := requireAffected(res, "certificate", id); err != nil {
		return err
	}
	return tx.Commit()
}

var _ CertificateRepositoryInterface = (*CertificateRepository)(nil)
