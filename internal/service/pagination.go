package service

import (
	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is a 1-based page request scoped to an owner group (nil for all).
type Page struct {
	OwnerGroupID *uuid.UUID
	Page         int
	PageSize     int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func (p Page) filter() repository.ListFilter {
	return repository.ListFilter{
		OwnerGroupID: p.OwnerGroupID,
		Offset:       (p.Page - 1) * p.PageSize,
		Limit:        p.PageSize,
	}
}

// pagination describes a page of a listing with total counts.
func pagination(p Page, total int) map[string]int {
	return map[string]int{
		"page":        p.Page,
		"page_size":   p.PageSize,
		"total_count": total,
		"total_pages": (total + p.PageSize - 1) / p.PageSize,
	}
}
