package periods

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/procurement-portal/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	periods map[int64]Period
	orders  map[int64][]bool
}

func newMemoryRepo(periods ...Period) *memoryRepo {
	repo := &memoryRepo{periods: make(map[int64]Period), orders: make(map[int64][]bool)}
	for _, p := range periods {
		repo.periods[p.ID] = p
	}
	return repo
}

func (m *memoryRepo) addOrders(periodID int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.orders[periodID] = append(m.orders[periodID], false)
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	periods := make(map[int64]Period, len(m.periods))
	for id, p := range m.periods {
		periods[id] = p
	}
	orders := make(map[int64][]bool, len(m.orders))
	for id, flags := range m.orders {
		orders[id] = append([]bool(nil), flags...)
	}
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.periods = periods
		m.orders = orders
		return err
	}
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) List(ctx context.Context) ([]Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Period, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, p)
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) LockRegistry(ctx context.Context) error { return nil }

func (t *memoryTx) LockOpen(ctx context.Context) (Period, error) {
	for _, p := range t.repo.periods {
		if p.Status == StatusOpen {
			return p, nil
		}
	}
	return Period{}, ErrNoActivePeriod
}

func (t *memoryTx) LockPeriod(ctx context.Context, id int64) (Period, error) {
	p, ok := t.repo.periods[id]
	if !ok {
		return Period{}, ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) HasOpen(ctx context.Context, exceptID int64) (bool, error) {
	for _, p := range t.repo.periods {
		if p.Status == StatusOpen && p.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	p := t.repo.periods[id]
	p.Status = status
	switch status {
	case StatusOpen:
		p.CollectionStartDate = at
		p.CollectionEndDate = nil
	case StatusClosed:
		p.CollectionEndDate = &at
	}
	p.UpdatedAt = at
	t.repo.periods[id] = p
	return nil
}

func (t *memoryTx) LockOrders(ctx context.Context, periodID int64) (int64, error) {
	var locked int64
	flags := t.repo.orders[periodID]
	for i, isLocked := range flags {
		if !isLocked {
			flags[i] = true
			locked++
		}
	}
	return locked, nil
}

type staticAdmins map[int64]bool

func (a staticAdmins) IsAdmin(ctx context.Context, id int64) (bool, error) {
	return a[id], nil
}

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type notifierSpy struct{ events []ClosedEvent }

func (n *notifierSpy) PeriodClosed(ctx context.Context, event ClosedEvent) error {
	n.events = append(n.events, event)
	return nil
}

type observerSpy struct{ closed []int64 }

func (o *observerSpy) PeriodClosed(lockedOrders int64) {
	o.closed = append(o.closed, lockedOrders)
}

const adminID = 9

var fixedNow = time.Date(2025, 12, 20, 15, 0, 0, 0, time.UTC)

func quarter(id int64, year, q int, status Status) Period {
	start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		ID:                  id,
		Year:                year,
		Quarter:             q,
		CollectionStartDate: start.AddDate(0, -1, 0),
		QuarterStartDate:    start,
		QuarterEndDate:      start.AddDate(0, 3, -1),
		Status:              status,
	}
}

type fixture struct {
	repo     *memoryRepo
	svc      *Service
	audit    *auditSpy
	notifier *notifierSpy
	observer *observerSpy
}

func newFixture(periods ...Period) fixture {
	f := fixture{
		repo:     newMemoryRepo(periods...),
		audit:    &auditSpy{},
		notifier: &notifierSpy{},
		observer: &observerSpy{},
	}
	f.svc = NewService(f.repo, staticAdmins{adminID: true}, f.audit, nil)
	f.svc.WithNow(func() time.Time { return fixedNow })
	f.svc.SetNotifier(f.notifier)
	f.svc.SetObserver(f.observer)
	return f
}

func TestStatusTransitionTable(t *testing.T) {
	all := []Status{StatusUpcoming, StatusOpen, StatusClosed}
	allowed := map[[2]Status]bool{
		{StatusUpcoming, StatusOpen}: true,
		{StatusOpen, StatusClosed}:   true,
	}
	for _, from := range all {
		require.True(t, from.IsValid())
		for _, to := range all {
			require.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	require.False(t, Status("archived").IsValid())
}

func TestSelectCurrent(t *testing.T) {
	q3 := quarter(1, 2025, 3, StatusClosed)
	q4 := quarter(2, 2025, 4, StatusOpen)
	q1 := quarter(3, 2026, 1, StatusUpcoming)
	q2 := quarter(4, 2026, 2, StatusUpcoming)
	q2prev := quarter(5, 2025, 2, StatusClosed)

	require.Nil(t, SelectCurrent(nil))
	require.Equal(t, int64(2), SelectCurrent([]Period{q3, q2, q4, q1}).ID)
	require.Equal(t, int64(3), SelectCurrent([]Period{q2, q3, q1}).ID)
	require.Equal(t, int64(1), SelectCurrent([]Period{q2prev, q3}).ID)
}

func TestCloseLocksEveryOrderOfThePeriod(t *testing.T) {
	f := newFixture(quarter(1, 2025, 3, StatusClosed), quarter(2, 2025, 4, StatusOpen))
	f.repo.addOrders(2, 3)
	f.repo.addOrders(1, 1)

	result, err := f.svc.Close(context.Background(), CloseInput{AdminID: adminID})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.PeriodID)
	require.Equal(t, int64(3), result.LockedOrders)
	require.Contains(t, result.Message, "Q4 2025")

	closed, err := f.svc.Get(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.CollectionEndDate)
	require.True(t, closed.CollectionEndDate.Equal(fixedNow))
	require.Equal(t, []bool{true, true, true}, f.repo.orders[2])
	require.Equal(t, []bool{false}, f.repo.orders[1])

	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "period.close", f.audit.logs[0].Action)
	require.Len(t, f.notifier.events, 1)
	require.Equal(t, int64(3), f.notifier.events[0].LockedOrders)
	require.Equal(t, []int64{3}, f.observer.closed)

	current, err := f.svc.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), current.ID)
}

func TestCloseRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(quarter(1, 2025, 3, StatusClosed), quarter(2, 2026, 1, StatusUpcoming))

	_, err := f.svc.Close(ctx, CloseInput{AdminID: adminID})
	require.ErrorIs(t, err, ErrNoActivePeriod)

	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID, PeriodID: 1})
	require.ErrorIs(t, err, ErrAlreadyClosed)

	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID, PeriodID: 2})
	require.ErrorIs(t, err, ErrNoActivePeriod)

	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID, PeriodID: 99})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Close(ctx, CloseInput{AdminID: 1, PeriodID: 1})
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.Empty(t, f.audit.logs)
	require.Empty(t, f.notifier.events)
}

func TestCloseTwiceFailsTheSecondTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(quarter(2, 2025, 4, StatusOpen))

	_, err := f.svc.Close(ctx, CloseInput{AdminID: adminID, PeriodID: 2})
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID, PeriodID: 2})
	require.ErrorIs(t, err, ErrAlreadyClosed)
	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID})
	require.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestCloseWithoutPeriodIDTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(quarter(1, 2025, 3, StatusClosed), quarter(2, 2025, 4, StatusOpen))

	result, err := f.svc.Close(ctx, CloseInput{AdminID: adminID})
	require.NoError(t, err)
	require.Equal(t, int64(2), result.PeriodID)

	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID})
	require.ErrorIs(t, err, ErrAlreadyClosed)
	require.Len(t, f.audit.logs, 1)
	require.Len(t, f.notifier.events, 1)
}

func TestCloseWithoutPeriodIDNothingToClose(t *testing.T) {
	ctx := context.Background()

	_, err := newFixture().svc.Close(ctx, CloseInput{AdminID: adminID})
	require.ErrorIs(t, err, ErrNoActivePeriod)

	_, err = newFixture(quarter(1, 2026, 1, StatusUpcoming)).svc.Close(ctx, CloseInput{AdminID: adminID})
	require.ErrorIs(t, err, ErrNoActivePeriod)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(quarter(1, 2025, 4, StatusOpen), quarter(2, 2026, 1, StatusUpcoming), quarter(3, 2025, 3, StatusClosed))

	_, err := f.svc.Open(ctx, OpenInput{AdminID: adminID, PeriodID: 2})
	require.ErrorIs(t, err, ErrAnotherPeriodOpen)

	_, err = f.svc.Open(ctx, OpenInput{AdminID: adminID, PeriodID: 3})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Open(ctx, OpenInput{AdminID: 4, PeriodID: 2})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.svc.Close(ctx, CloseInput{AdminID: adminID})
	require.NoError(t, err)

	opened, err := f.svc.Open(ctx, OpenInput{AdminID: adminID, PeriodID: 2})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, opened.Status)
	require.True(t, opened.CollectionStartDate.Equal(fixedNow))
	require.Nil(t, opened.CollectionEndDate)

	current, err := f.svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), current.ID)
}
