package chaos

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"libralend/internal/circulation"
	"libralend/internal/eventstore"
	"libralend/internal/ids"
	"libralend/internal/library"
	"libralend/internal/membership"
)

var ErrInjectedFault = errors.New("injected journal fault")

// FaultyJournal sits between the services and the journal and injects
// latency and failures on demand.
type FaultyJournal struct {
	inner eventstore.Journal

	mu          sync.RWMutex
	failureRate float64
	latency     time.Duration

	injected atomic.Int64
}

// Wrap is a library.WithJournalDecorator function.
func (f *FaultyJournal) Wrap(j eventstore.Journal) eventstore.Journal {
	f.inner = j
	return f
}

// SetFailureRate makes Append fail with probability p.
func (f *FaultyJournal) SetFailureRate(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failureRate = p
}

func (f *FaultyJournal) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// Reset removes every fault.
func (f *FaultyJournal) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failureRate = 0
	f.latency = 0
}

// Injected is the number of appends failed on purpose so far.
func (f *FaultyJournal) Injected() int64 {
	return f.injected.Load()
}

func (f *FaultyJournal) Append(ctx context.Context, aggregateType, aggregateID string, events ...eventstore.Event) error {
	f.mu.RLock()
	rate, latency := f.failureRate, f.latency
	f.mu.RUnlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(latency):
		}
	}
	if rate > 0 && rand.Float64() < rate {
		f.injected.Add(1)
		return ErrInjectedFault
	}
	return f.inner.Append(ctx, aggregateType, aggregateID, events...)
}

// Target is the registry experiments run against, with a FaultyJournal wired
// into its services.
type Target struct {
	Registry *library.Registry
	Faults   *FaultyJournal
}

func NewTarget(opts ...library.Option) *Target {
	faults := &FaultyJournal{}
	opts = append(opts, library.WithJournalDecorator(faults.Wrap))
	return &Target{
		Registry: library.New(opts...),
		Faults:   faults,
	}
}

// InventoryViolations counts items whose copies do not add up: available
// outside [0, total], or available plus active loans different from total.
func (t *Target) InventoryViolations(ctx context.Context) (float64, error) {
	onLoan := t.activeLoansByItem(ctx)

	violations := 0
	for _, item := range t.Registry.ListCatalogItems(ctx) {
		if item.Available < 0 || item.Available > item.TotalCopies ||
			item.Available+onLoan[item.ID] != item.TotalCopies {
			violations++
		}
	}
	return float64(violations), nil
}

// QuotaViolations counts members holding more than the loan limit, or
// whose own loan list disagrees with circulation.
func (t *Target) QuotaViolations(ctx context.Context) (float64, error) {
	violations := 0
	for _, m := range t.Registry.Membership().ListMembers(ctx) {
		active := 0
		for _, loan := range t.Registry.LoansOfBorrower(ctx, m.ID) {
			if loan.Status == circulation.StatusActive {
				active++
			}
		}
		if m.ActiveLoans > membership.MaxActiveLoans || m.ActiveLoans != active {
			violations++
		}
	}
	return float64(violations), nil
}

func (t *Target) activeLoansByItem(ctx context.Context) map[ids.ItemID]int {
	out := make(map[ids.ItemID]int)
	for _, m := range t.Registry.Membership().ListMembers(ctx) {
		for _, loan := range t.Registry.LoansOfBorrower(ctx, m.ID) {
			if loan.Status == circulation.StatusActive {
				out[loan.ItemID]++
			}
		}
	}
	return out
}
