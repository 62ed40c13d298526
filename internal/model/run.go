// internal/model/run.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunError      RunStatus = "error"
)

var runTransitions = map[RunStatus]map[RunStatus]bool{
	RunPending:    {RunProcessing: true},
	RunProcessing: {RunCompleted: true, RunError: true},
	RunCompleted:  {},
	RunError:      {},
}

// CanTransition reports whether a run may move from one status to another.
func CanTransition(from, to RunStatus) bool {
	return runTransitions[from][to]
}

// Terminal reports whether no transition leaves s.
func (s RunStatus) Terminal() bool {
	return len(runTransitions[s]) == 0
}

// Run is one batch execution of a template against every row of a dataset.
type Run struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	OwnerGroupID          uuid.UUID  `db:"owner_group_id" json:"owner_group_id"`
	Name                  string     `db:"name" json:"name"`
	TemplateID            uuid.UUID  `db:"template_id" json:"template_id"`
	DatasetID             uuid.UUID  `db:"dataset_id" json:"dataset_id"`
	NameColumn            string     `db:"name_column" json:"name_column"`
	EmailColumn           string     `db:"email_column" json:"email_column"`
	Status                RunStatus  `db:"status" json:"status"`
	TotalRows             int        `db:"total_rows" json:"total_rows"`
	CertificatesGenerated int        `db:"certificates_generated" json:"certificates_generated"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	StartedAt             *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
