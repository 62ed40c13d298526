// internal/model/template.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Template is an HTML document with {{field}} placeholders.
// DetectedFields is derived from Document and is advisory only.
type Template struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OwnerGroupID   uuid.UUID `db:"owner_group_id" json:"owner_group_id"`
	Name           string    `db:"name" json:"name"`
	Document       string    `db:"document" json:"document"`
	DetectedFields []string  `db:"detected_fields" json:"detected_fields"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
