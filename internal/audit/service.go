package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// exportLimit caps CSV exports.
	exportLimit = 5000
	orderModule = "orders"
)

// WindowParams are the query arguments of a timeline page.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Entity     pgtype.Text
	EntityID   pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error)
}

// ApprovalReader lists recorded approvals.
type ApprovalReader interface {
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// Service serves the audit timeline and order approval history.
type Service struct {
	repo      Repository
	approvals ApprovalReader
}

// NewService builds the audit service. approvals may be nil.
func NewService(repo Repository, approvals ApprovalReader) *Service {
	return &Service{repo: repo, approvals: approvals}
}

// Timeline returns one page of audit records, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	params := windowParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
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

// Export returns every matching record up to the export cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	params := windowParams(filters)
	params.LimitRows = exportLimit
	rows, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("audit: export: %w", err)
	}
	return rows, nil
}

// OrderApprovals returns the submit and decision steps of an order.
func (s *Service) OrderApprovals(ctx context.Context, orderID int64) ([]ApprovalEntry, error) {
	if s.approvals == nil {
		return []ApprovalEntry{}, nil
	}
	logs, err := s.approvals.List(ctx, orderModule, shared.ApprovalRef(orderModule, orderID))
	if err != nil {
		return nil, fmt.Errorf("audit: approvals for order %d: %w", orderID, err)
	}
	entries := make([]ApprovalEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, ApprovalEntry{ActorID: l.ActorID, Action: string(l.Action), Note: l.Note, At: l.At})
	}
	return entries, nil
}

func windowParams(filters TimelineFilters) WindowParams {
	return WindowParams{
		FromAt:   toPgTime(filters.From),
		ToAt:     toPgTime(filters.To),
		Entity:   optionalText(filters.Entity),
		EntityID: optionalText(filters.EntityID),
		Action:   optionalText(filters.Action),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
