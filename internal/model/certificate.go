// internal/model/certificate.go
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CertificateStatus string

const (
	CertificateCompleted CertificateStatus = "completed"
	CertificateRevoked   CertificateStatus = "revoked"
)

// Certificate is the rendered result for one dataset row within a run.
type Certificate struct {
	ID                  uuid.UUID         `db:"id" json:"id"`
	RunID               *uuid.UUID        `db:"run_id" json:"run_id,omitempty"`
	OwnerGroupID        uuid.UUID         `db:"owner_group_id" json:"owner_group_id"`
	TemplateID          uuid.UUID         `db:"template_id" json:"template_id"`
	DatasetID           uuid.UUID         `db:"dataset_id" json:"dataset_id"`
	RowIndex            int               `db:"row_index" json:"row_index"`
	RowData             json.RawMessage   `db:"row_data" json:"row_data"`
	SubjectName         *string           `db:"subject_name" json:"subject_name,omitempty"`
	RenderedContent     string            `db:"rendered_content" json:"rendered_content"`
	RenderedDocumentRef *string           `db:"rendered_document_ref" json:"rendered_document_ref,omitempty"`
	Status              CertificateStatus `db:"status" json:"status"`
	VerificationURL     *string           `db:"verification_url" json:"verification_url,omitempty"`
	VerifiedAt          *time.Time        `db:"verified_at" json:"verified_at,omitempty"`
	EmailSent           bool              `db:"email_sent" json:"email_sent"`
	EmailRecipient      *string           `db:"email_recipient" json:"email_recipient,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
}

// Recipient returns the trimmed email recipient, or "" when absent.
func (c *Certificate) Recipient() string {
	if c.EmailRecipient == nil {
		return ""
	}
	return strings.TrimSpace(*c.EmailRecipient)
}
