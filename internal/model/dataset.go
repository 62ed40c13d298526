// internal/model/dataset.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Dataset is an uploaded roster. Columns and Rows are the decoded view;
// RawColumns and RawRows hold the stored encoding, which is either canonical
// JSON or the legacy delimited text.
type Dataset struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OwnerGroupID uuid.UUID  `db:"owner_group_id" json:"owner_group_id"`
	Name         string     `db:"name" json:"name"`
	Columns      []string   `json:"columns"`
	Rows         [][]string `json:"rows"`
	RawColumns   string     `db:"columns_raw" json:"-"`
	RawRows      string     `db:"rows_raw" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// HasColumn reports whether name is one of the dataset's columns.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// RowCount returns the number of data rows (header excluded).
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}
