// internal/repository/repository.go
package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ListFilter scopes and pages a list query. A nil OwnerGroupID lists every group.
type ListFilter struct {
	OwnerGroupID *uuid.UUID
	Offset       int
	Limit        int
}

// RunDeleteResult reports what a cascading run delete removed.
type RunDeleteResult struct {
	EmailLogsDeleted    int `json:"email_logs_deleted"`
	CampaignsDeleted    int `json:"campaigns_deleted"`
	CertificatesDeleted int `json:"certificates_deleted"`
}

type scanner interface {
	Scan(dest ...any) error
}

// whereBuilder accumulates AND conditions with positional args.
type whereBuilder struct {
	clause string
	args   []any
}

func newWhere() *whereBuilder {
	return &whereBuilder{clause: " WHERE 1=1"}
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.clause += fmt.Sprintf(" AND "+cond, len(w.args))
}

func (w *whereBuilder) owner(f ListFilter) {
	if f.OwnerGroupID != nil {
		w.add("owner_group_id=$%d", *f.OwnerGroupID)
	}
}

// page appends ordering and paging, returning the query and args.
func (w *whereBuilder) page(base string, f ListFilter) (string, []any) {
	args := append([]any{}, w.args...)
	query := base + w.clause + " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return query, args
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// paginate applies offset/limit to an in-memory slice.
func paginate[T any](items []T, f ListFilter) []T {
	if f.Offset >= len(items) {
		return []T{}
	}
	items = items[f.Offset:]
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}
