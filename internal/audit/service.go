// Package audit reads back the audit trail written by the auth, identity and
// rbac services.
package audit

import (
	"context"
	"errors"
)

// Bounds for a single page.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// ExportLimit caps an unpaged export.
	ExportLimit = 5000
)

// ErrRepositoryMissing is returned when the service has no backing store.
var ErrRepositoryMissing = errors.New("audit: repository not configured")

// WindowQuery is a resolved filter with an explicit offset and limit.
type WindowQuery struct {
	Filters TimelineFilters
	Offset  int
	Limit   int
}

// Repository loads audit rows in reverse chronological order.
type Repository interface {
	Window(ctx context.Context, q WindowQuery) ([]TimelineRow, error)
}

// Service pages through the audit trail.
type Service struct {
	repo Repository
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page. It fetches a single extra row to learn whether a
// next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, ErrRepositoryMissing
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, WindowQuery{Filters: filters, Offset: (page - 1) * pageSize, Limit: pageSize + 1})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row up to ExportLimit.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, ErrRepositoryMissing
	}
	return s.repo.Window(ctx, WindowQuery{Filters: filters, Limit: ExportLimit})
}
