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

// CampaignFilter narrows a campaign listing. Zero fields match all.
type CampaignFilter struct {
	ListFilter
	RunID  *uuid.UUID
	Status model.CampaignStatus
}

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	ListCampaigns(ctx context.Context, f CampaignFilter) ([]*model.EmailCampaign, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.EmailCampaign, error)
	Create(ctx context.Context, c *model.EmailCampaign) error
	// Update rewrites the message fields of a draft campaign.
	Update(ctx context.Context, c *model.EmailCampaign) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Dispatch lifecycle
	MarkSending(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.EmailCampaign, error)
	Finish(ctx context.Context, id uuid.UUID, status model.CampaignStatus, emailsSent int, completedAt time.Time) error

	// Email logs
	CreateEmailLog(ctx context.Context, l *model.EmailLog) error
	GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (map[string]int, error)
	// SentCertificateIDs lists the certificates this campaign already emailed.
	SentCertificateIDs(ctx context.Context, campaignID uuid.UUID) (map[uuid.UUID]bool, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, owner_group_id, run_id, name, subject, body, html_body, status,
	total_emails, emails_sent, created_at, started_at, completed_at`

func scanCampaign(s scanner) (*model.EmailCampaign, error) {
	var c model.EmailCampaign
	err := s.Scan(&c.ID, &c.OwnerGroupID, &c.RunID, &c.Name, &c.Subject, &c.Body, &c.HTMLBody, &c.Status,
		&c.TotalEmails, &c.EmailsSent, &c.CreatedAt, &c.StartedAt, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.EmailCampaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO email_campaigns (id, owner_group_id, run_id, name, subject, body, html_body, status,
			total_emails, emails_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.OwnerGroupID, c.RunID, c.Name, c.Subject, c.Body, c.HTMLBody, c.Status,
		c.TotalEmails, c.EmailsSent, c.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return appErrors.NewNotFound("run", c.RunID)
		}
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EmailCampaign, error) {
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM email_campaigns WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("campaign", id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, f CampaignFilter) ([]*model.EmailCampaign, int, error) {
	w := newWhere()
	w.owner(f.ListFilter)
	if f.RunID != nil {
		w.add("run_id=$%d", *f.RunID)
	}
	if f.Status != "" {
		w.add("status=$%d", f.Status)
	}

	query, args := w.page(`SELECT `+campaignColumns+` FROM email_campaigns`, f.ListFilter)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*model.EmailCampaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_campaigns`+w.clause, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *model.EmailCampaign) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE email_campaigns SET name=$1, subject=$2, body=$3, html_body=$4
		WHERE id=$5 AND status=$6`,
		c.Name, c.Subject, c.Body, c.HTMLBody, c.ID, model.CampaignDraft,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return r.requireStatus(ctx, res, c.ID, "update")
}

func (r *CampaignRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin campaign delete: %w", err)
	}
	defer tx.Rollback()

	var status model.CampaignStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM email_campaigns WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.NewNotFound("campaign", id)
		}
		return fmt.Errorf("failed to lock campaign: %w", err)
	}
	if status == model.CampaignSending {
		return appErrors.NewInvalidState("campaign", id, string(status), "delete")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM email_logs WHERE campaign_id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign logs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM email_campaigns WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return tx.Commit()
}

// ====================== Dispatch lifecycle ======================

func (r *CampaignRepository) MarkSending(ctx context.Context, id uuid.UUID, startedAt time.Time) (*model.EmailCampaign, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE email_campaigns SET status=$1, started_at=$2
		WHERE id=$3 AND status IN ($4, $5)
		RETURNING `+campaignColumns,
		model.CampaignSending, startedAt, id, model.CampaignDraft, model.CampaignError,
	)
	c, err := scanCampaign(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark campaign sending: %w", err)
	}
	return nil, r.stateError(ctx, id, "send")
}

func (r *CampaignRepository) Finish(ctx context.Context, id uuid.UUID, status model.CampaignStatus, emailsSent int, completedAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE email_campaigns SET status=$1, emails_sent=$2, completed_at=$3
		WHERE id=$4 AND status=$5`,
		status, emailsSent, completedAt, id, model.CampaignSending,
	)
	if err != nil {
		return fmt.Errorf("failed to finish campaign: %w", err)
	}
	return r.requireStatus(ctx, res, id, "finish")
}

func (r *CampaignRepository) requireStatus(ctx context.Context, res sql.Result, id uuid.UUID, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.stateError(ctx, id, op)
	}
	return nil
}

// stateError explains why a guarded update matched no row.
func (r *CampaignRepository) stateError(ctx context.Context, id uuid.UUID, op string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if op == "send" && current.Status == model.CampaignCompleted {
		return appErrors.NewAlreadySent(id)
	}
	return appErrors.NewInvalidState("campaign", id, string(current.Status), op)
}

// ====================== Email logs ======================

func (r *CampaignRepository) CreateEmailLog(ctx context.Context, l *model.EmailLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO email_logs (id, campaign_id, certificate_id, recipient, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.CampaignID, l.CertificateID, l.Recipient, l.Status, l.Error, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM email_logs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{string(model.EmailSent): 0, string(model.EmailFailed): 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *CampaignRepository) SentCertificateIDs(ctx context.Context, campaignID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT certificate_id FROM email_logs WHERE campaign_id=$1 AND status=$2`,
		campaignID, model.EmailSent)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent certificates: %w", err)
	}
	defer rows.Close()

	sent := map[uuid.UUID]bool{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sent[id] = true
	}
	return sent, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
