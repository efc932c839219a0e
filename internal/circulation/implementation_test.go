package circulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"libralend/internal/apperrors"
	"libralend/internal/calendar"
	"libralend/internal/catalog"
	"libralend/internal/eventstore"
	"libralend/internal/ids"
	"libralend/internal/membership"
)

type fixture struct {
	svc     Service
	catalog catalog.Service
	members membership.Service
	clock   *calendar.ManualClock
	journal *eventstore.EventStore
}

func newFixture(t *testing.T, journal eventstore.Journal) *fixture {
	t.Helper()
	store := eventstore.NewEventStore()
	if journal == nil {
		journal = store
	}
	clock := calendar.NewManualClock(time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC))
	cat := catalog.NewService(ids.NewSequence(ids.CatalogBase), store, clock, nil)
	mem := membership.NewService(ids.NewSequence(0), store, nil, nil)
	return &fixture{
		svc:     NewService(ids.NewSequence(0), journal, cat, mem, clock, nil),
		catalog: cat,
		members: mem,
		clock:   clock,
		journal: store,
	}
}

func (f *fixture) item(t *testing.T, copies int) *catalog.Item {
	t.Helper()
	item, err := f.catalog.AddItem(context.Background(), "Dune", "Frank Herbert", 1965, copies)
	require.NoError(t, err)
	return item
}

func (f *fixture) member(t *testing.T, name string) *membership.Member {
	t.Helper()
	m, err := f.members.RegisterMember(context.Background(), name, name+"@example.com")
	require.NoError(t, err)
	return m
}

func TestService_CheckoutAndReturnOnTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 2)
	ada := f.member(t, "ada")

	loan, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.NoError(t, err)
	assert.Equal(t, ids.LoanID(1), loan.ID())
	assert.Equal(t, 1, item.Available())
	assert.Equal(t, []ids.LoanID{1}, ada.ActiveLoans())

	receipt, err := f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, StatusReturned, receipt.Loan.Status)
	assert.True(t, receipt.Loan.Fine.IsZero())
	assert.True(t, receipt.CopyRestored)
	assert.NoError(t, receipt.FineRejected)
	assert.Equal(t, 2, item.Available())
	assert.Empty(t, ada.ActiveLoans())
	assert.True(t, ada.Fine().IsZero())
}

func TestService_QuotaOfThree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 10)
	ada := f.member(t, "ada")

	var loans []*Loan
	for i := 0; i < membership.MaxActiveLoans; i++ {
		loan, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
		require.NoError(t, err)
		loans = append(loans, loan)
	}

	_, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.ErrorIs(t, err, apperrors.ErrQuotaExceeded)
	assert.Equal(t, 7, item.Available(), "a rejected checkout takes no copy")

	_, err = f.svc.ReturnItem(ctx, loans[0].ID())
	require.NoError(t, err)

	_, err = f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	assert.NoError(t, err)
}

func TestService_LastCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 1)
	a, b := f.member(t, "a"), f.member(t, "b")

	loan, err := f.svc.CheckoutItem(ctx, a.ID(), item.ID())
	require.NoError(t, err)

	_, err = f.svc.CheckoutItem(ctx, b.ID(), item.ID())
	require.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Empty(t, b.ActiveLoans())

	_, err = f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)

	_, err = f.svc.CheckoutItem(ctx, b.ID(), item.ID())
	assert.NoError(t, err)
	assert.Equal(t, 0, item.Available())
}

func TestService_CheckoutUnknownParties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 1)
	ada := f.member(t, "ada")

	_, err := f.svc.CheckoutItem(ctx, 42, item.ID())
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.CheckoutItem(ctx, ada.ID(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 1, item.Available())
	assert.Empty(t, ada.ActiveLoans())
}

func TestService_LateReturnPostsFine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 1)
	ada := f.member(t, "ada")

	loan, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.NoError(t, err)

	f.clock.AdvanceDays(17)
	receipt, err := f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)

	assert.Equal(t, StatusOverdue, receipt.Loan.Status)
	assert.True(t, decimal.NewFromInt(1500).Equal(receipt.FineAssessed))
	assert.True(t, decimal.NewFromInt(1500).Equal(ada.Fine()))

	events, err := f.journal.LoadEvents(ctx, aggregateType, loan.ID().String(), 0, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{"ItemCheckedOut", "ItemReturned", "FineAssessed"}, types)
}

func TestService_FineOverCeilingIsNotPosted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 1)
	ada := f.member(t, "ada")
	require.NoError(t, ada.AssessFine(decimal.NewFromInt(4800)))

	loan, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.NoError(t, err)

	f.clock.AdvanceDays(LoanPeriodDays + 1)
	receipt, err := f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)

	// the return stands even though the fine could not be posted
	assert.Equal(t, StatusOverdue, receipt.Loan.Status)
	assert.True(t, receipt.CopyRestored)
	assert.ErrorIs(t, receipt.FineRejected, apperrors.ErrValidation)
	assert.True(t, receipt.FineAssessed.IsZero())
	assert.True(t, decimal.NewFromInt(4800).Equal(ada.Fine()))
	assert.Empty(t, ada.ActiveLoans())
	assert.Equal(t, 1, item.Available())

	events, err := f.journal.LoadEvents(ctx, aggregateType, loan.ID().String(), 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "FineRejected", events[2].EventType)
}

func TestService_ReturnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 1)
	ada := f.member(t, "ada")

	receipt, err := f.svc.ReturnItem(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, receipt)

	loan, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.NoError(t, err)
	f.clock.AdvanceDays(20)
	_, err = f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)

	fine := ada.Fine()
	receipt, err = f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, 1, item.Available())
	assert.True(t, fine.Equal(ada.Fine()), "no fine on a repeated return")
}

func TestService_LoansOfMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 3)
	ada, bob := f.member(t, "ada"), f.member(t, "bob")

	first, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.NoError(t, err)
	_, err = f.svc.CheckoutItem(ctx, bob.ID(), item.ID())
	require.NoError(t, err)
	second, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.NoError(t, err)
	_, err = f.svc.ReturnItem(ctx, first.ID())
	require.NoError(t, err)

	views := f.svc.LoansOfMember(ctx, ada.ID())
	require.Len(t, views, 2)
	assert.Equal(t, first.ID(), views[0].ID)
	assert.Equal(t, StatusReturned, views[0].Status)
	assert.Equal(t, second.ID(), views[1].ID)
	assert.Equal(t, StatusActive, views[1].Status)

	assert.Empty(t, f.svc.LoansOfMember(ctx, 404))

	_, err = f.svc.GetLoan(ctx, 404)
	assert.True(t, apperrors.IsNotFound(err))
}

type failingJournal struct {
	inner  eventstore.Journal
	failOn string
}

func (j *failingJournal) Append(ctx context.Context, aggregateType, aggregateID string, events ...eventstore.Event) error {
	for _, e := range events {
		if e.EventType == j.failOn {
			return errors.New("journal unavailable")
		}
	}
	return j.inner.Append(ctx, aggregateType, aggregateID, events...)
}

func TestService_CheckoutCompensatesOnJournalFailure(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewEventStore()
	f := newFixture(t, &failingJournal{inner: store, failOn: "ItemCheckedOut"})
	item := f.item(t, 1)
	ada := f.member(t, "ada")

	_, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append event")

	assert.Equal(t, 1, item.Available(), "the copy is given back")
	assert.Empty(t, ada.ActiveLoans())
	assert.Empty(t, f.svc.LoansOfMember(ctx, ada.ID()))

	events, err := store.LoadEvents(ctx, aggregateType, "1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CheckoutCompensated", events[0].EventType)
}

func TestService_ConcurrentCheckoutsRespectQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 10)
	ada := f.member(t, "ada")

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CheckoutItem(ctx, ada.ID(), item.ID()); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(membership.MaxActiveLoans), ok.Load())
	assert.Len(t, ada.ActiveLoans(), membership.MaxActiveLoans)
	assert.Equal(t, 10-membership.MaxActiveLoans, item.Available())
}

func TestService_ConcurrentStress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	items := []*catalog.Item{f.item(t, 2), f.item(t, 3), f.item(t, 1)}
	var members []*membership.Member
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		members = append(members, f.member(t, name))
	}

	var wg sync.WaitGroup
	for w, m := range members {
		wg.Add(1)
		go func(w int, m *membership.Member) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				item := items[(w+i)%len(items)]
				loan, err := f.svc.CheckoutItem(ctx, m.ID(), item.ID())
				if err != nil {
					continue
				}
				if i%2 == 0 {
					_, _ = f.svc.ReturnItem(ctx, loan.ID())
				}
			}
		}(w, m)
	}
	wg.Wait()

	// every copy is either on the shelf or on an active loan
	out := map[ids.ItemID]int{}
	for _, m := range members {
		active := 0
		for _, v := range f.svc.LoansOfMember(ctx, m.ID()) {
			if v.Status == StatusActive {
				active++
				out[v.ItemID]++
			}
		}
		assert.Equal(t, active, len(m.ActiveLoans()))
		assert.LessOrEqual(t, active, membership.MaxActiveLoans)
	}
	for _, item := range items {
		assert.Equal(t, item.TotalCopies(), item.Available()+out[item.ID()], "item %s", item.ID())
	}
}

func TestService_RecordsLoanMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	ctx := context.Background()
	f := newFixture(t, nil)
	item := f.item(t, 1)
	a, b := f.member(t, "a"), f.member(t, "b")

	loan, err := f.svc.CheckoutItem(ctx, a.ID(), item.ID())
	require.NoError(t, err)
	_, err = f.svc.CheckoutItem(ctx, b.ID(), item.ID())
	require.Error(t, err)
	_, err = f.svc.ReturnItem(ctx, loan.ID())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), totals["libralend.loans.issued"])
	assert.Equal(t, int64(1), totals["libralend.loans.rejected"])
	assert.Equal(t, int64(1), totals["libralend.loans.returned"])
}
