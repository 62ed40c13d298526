// internal/model/campaign.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignError     CampaignStatus = "error"
)

// EmailCampaign is a batch email dispatch over the certificates of one completed run.
type EmailCampaign struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	OwnerGroupID uuid.UUID      `db:"owner_group_id" json:"owner_group_id"`
	RunID        uuid.UUID      `db:"run_id" json:"run_id"`
	Name         string         `db:"name" json:"name"`
	Subject      string         `db:"subject" json:"subject"`
	Body         string         `db:"body" json:"body"`
	HTMLBody     *string        `db:"html_body" json:"html_body,omitempty"`
	Status       CampaignStatus `db:"status" json:"status"`
	TotalEmails  int            `db:"total_emails" json:"total_emails"`
	EmailsSent   int            `db:"emails_sent" json:"emails_sent"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	StartedAt    *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// Sendable reports whether a send may start from the current status.
func (c *EmailCampaign) Sendable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignError
}

type EmailLogStatus string

const (
	EmailSent   EmailLogStatus = "sent"
	EmailFailed EmailLogStatus = "failed"
)

// EmailLog is the outcome of one dispatch attempt to one recipient.
type EmailLog struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	CampaignID    uuid.UUID      `db:"campaign_id" json:"campaign_id"`
	CertificateID uuid.UUID      `db:"certificate_id" json:"certificate_id"`
	Recipient     string         `db:"recipient" json:"recipient"`
	Status        EmailLogStatus `db:"status" json:"status"`
	Error         string         `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
