// Package periods maintains the quarterly collection windows during which
// clients may submit orders.
package periods

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Status enumerates the lifecycle of a quarterly period.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
)

var transitions = map[Status]map[Status]bool{
	StatusUpcoming: {StatusOpen: true},
	StatusOpen:     {StatusClosed: true},
	StatusClosed:   {},
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether a period may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// Period is one quarterly collection window.
type Period struct {
	ID                  int64      `json:"id"`
	Year                int        `json:"year"`
	Quarter             int        `json:"quarter"`
	CollectionStartDate time.Time  `json:"collection_start_date"`
	CollectionEndDate   *time.Time `json:"collection_end_date"`
	QuarterStartDate    time.Time  `json:"quarter_start_date"`
	QuarterEndDate      time.Time  `json:"quarter_end_date"`
	Status              Status     `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// AcceptsOrders reports whether new orders may be attached to the period.
func (p Period) AcceptsOrders() bool {
	return p.Status == StatusOpen
}

// Label renders the period as "Q4 2025".
func (p Period) Label() string {
	return fmt.Sprintf("Q%d %d", p.Quarter, p.Year)
}

// SelectCurrent picks the period the UI should show: the open one, else the
// earliest upcoming one by quarter start, else the most recently closed one.
// It returns nil when periods is empty.
func SelectCurrent(periods []Period) *Period {
	var open, upcoming, closed []Period
	for _, p := range periods {
		switch p.Status {
		case StatusOpen:
			open = append(open, p)
		case StatusUpcoming:
			upcoming = append(upcoming, p)
		case StatusClosed:
			closed = append(closed, p)
		}
	}
	if len(open) > 0 {
		return &open[0]
	}
	if len(upcoming) > 0 {
		sort.SliceStable(upcoming, func(i, j int) bool {
			return upcoming[i].QuarterStartDate.Before(upcoming[j].QuarterStartDate)
		})
		return &upcoming[0]
	}
	if len(closed) > 0 {
		sort.SliceStable(closed, func(i, j int) bool {
			return closed[i].QuarterStartDate.After(closed[j].QuarterStartDate)
		})
		return &closed[0]
	}
	return nil
}

// CloseInput selects the period to close. A zero PeriodID targets the open
// period.
type CloseInput struct {
	AdminID  int64
	PeriodID int64
}

// CloseResult summarises a completed close.
type CloseResult struct {
	Message      string `json:"message"`
	PeriodID     int64  `json:"period_id"`
	LockedOrders int64  `json:"locked_orders"`
}

// OpenInput selects an upcoming period to open.
type OpenInput struct {
	AdminID  int64
	PeriodID int64
}

// ClosedEvent is published after a period close commits.
type ClosedEvent struct {
	PeriodID     int64     `json:"period_id"`
	Year         int       `json:"year"`
	Quarter      int       `json:"quarter"`
	LockedOrders int64     `json:"locked_orders"`
	ClosedBy     int64     `json:"closed_by"`
	ClosedAt     time.Time `json:"closed_at"`
}

var (
	// ErrNotFound indicates the period does not exist.
	ErrNotFound = errors.New("periods: period not found")
	// ErrNoActivePeriod indicates no period is open.
	ErrNoActivePeriod = errors.New("periods: no active period")
	// ErrAlreadyClosed indicates the period was closed before.
	ErrAlreadyClosed = errors.New("periods: period already closed")
	// ErrAnotherPeriodOpen indicates a different period is already open.
	ErrAnotherPeriodOpen = errors.New("periods: another period is open")
	// ErrInvalidTransition indicates the status change is not allowed.
	ErrInvalidTransition = errors.New("periods: invalid status transition")
)
