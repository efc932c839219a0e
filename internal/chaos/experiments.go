// internal/chaos/experiments.go
package chaos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"libralend/internal/ids"
	"libralend/internal/library"
	"libralend/internal/membership"
)

// Options sizes the predefined experiments.
type Options struct {
	Concurrency int
	Rounds      int
	Duration    time.Duration
	Latency     time.Duration
	FailureRate float64
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 50
	}
	if o.Rounds <= 0 {
		o.Rounds = 20
	}
	if o.Duration <= 0 {
		o.Duration = 3 * time.Second
	}
	if o.Latency <= 0 {
		o.Latency = time.Millisecond
	}
	if o.FailureRate <= 0 {
		o.FailureRate = 0.3
	}
	return o
}

// RegisterExperiments registers all predefined experiments with the engine.
func (e *Engine) RegisterExperiments(t *Target, opts Options) {
	opts = opts.withDefaults()
	e.RegisterExperiment(ConcurrentCheckoutExperiment(t, opts))
	e.RegisterExperiment(QuotaRaceExperiment(t, opts))
	e.RegisterExperiment(JournalLatencyExperiment(t, opts))
	e.RegisterExperiment(JournalOutageExperiment(t, opts))
}

func consistencyMetrics(t *Target) []Metric {
	return []Metric{
		{
			Name:      "inventory_violations",
			Query:     t.InventoryViolations,
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name:      "quota_violations",
			Query:     t.QuotaViolations,
			Threshold: Threshold{Operator: "==", Value: 0},
		},
	}
}

func consistencyAssertions() []Assertion {
	return []Assertion{
		{
			Metric:    "inventory_violations",
			Condition: func(v float64) bool { return v == 0 },
			Message:   "Every copy should be on the shelf or on exactly one active loan",
		},
		{
			Metric:    "quota_violations",
			Condition: func(v float64) bool { return v == 0 },
			Message:   "No borrower should hold more than the loan limit",
		},
	}
}

// ConcurrentCheckoutExperiment validates that a scarce item is never
// oversold.
func ConcurrentCheckoutExperiment(t *Target, opts Options) Experiment {
	opts = opts.withDefaults()
	const copies = 5
	var (
		itemID ids.ItemID
		issued atomic.Int64
	)

	metrics := append(consistencyMetrics(t), Metric{
		Name: "oversold",
		Query: func(context.Context) (float64, error) {
			if itemID == "" {
				return 0, nil
			}
			return float64(issued.Load() - copies), nil
		},
		Threshold: Threshold{Operator: "<=", Value: 0},
	})

	return Experiment{
		Name:        "concurrent-checkout-race-condition",
		Hypothesis:  "Exactly as many loans are issued as there are copies when borrowers race for one item",
		SteadyState: metrics,
		Method: []Action{
			{
				Type:   "workload",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					items, err := addItems(ctx, t.Registry, copies)
					if err != nil {
						return err
					}
					members, err := addMembers(ctx, t.Registry, max(opts.Concurrency, 2*copies))
					if err != nil {
						return err
					}
					itemID = items[0]

					var wg sync.WaitGroup
					for _, m := range members {
						wg.Add(1)
						go func(m ids.MemberID) {
							defer wg.Done()
							if _, err := t.Registry.IssueLoan(ctx, m, itemID); err == nil {
								issued.Add(1)
							}
						}(m)
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: append(consistencyAssertions(), Assertion{
			Metric:    "oversold",
			Condition: func(v float64) bool { return v == 0 },
			Message:   "All copies should be lent and none twice",
		}),
		Duration: opts.Duration,
	}
}

// QuotaRaceExperiment validates the loan limit when one borrower fires many
// checkouts at once.
func QuotaRaceExperiment(t *Target, opts Options) Experiment {
	opts = opts.withDefaults()
	var granted atomic.Int64

	return Experiment{
		Name:        "borrower-quota-race",
		Hypothesis:  "A borrower racing against itself never holds more than the loan limit",
		SteadyState: consistencyMetrics(t),
		Method: []Action{
			{
				Type:   "workload",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					items, err := addItems(ctx, t.Registry, opts.Concurrency)
					if err != nil {
						return err
					}
					members, err := addMembers(ctx, t.Registry, 1)
					if err != nil {
						return err
					}

					var wg sync.WaitGroup
					for i := 0; i < opts.Concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							if _, err := t.Registry.IssueLoan(ctx, members[0], items[0]); err == nil {
								granted.Add(1)
							}
						}()
					}
					wg.Wait()
					if n := granted.Load(); n != membership.MaxActiveLoans {
						return fmt.Errorf("granted %d loans, want %d", n, membership.MaxActiveLoans)
					}
					return nil
				},
			},
		},
		Validation: consistencyAssertions(),
		Duration:   opts.Duration,
	}
}

// JournalLatencyExperiment slows every journal append while borrowers churn,
// widening the window in which the per-borrower lock is held.
func JournalLatencyExperiment(t *Target, opts Options) Experiment {
	opts = opts.withDefaults()

	return Experiment{
		Name:        "journal-latency-injection",
		Hypothesis:  "Inventory and quotas stay consistent when journal appends are slow",
		SteadyState: consistencyMetrics(t),
		Method: []Action{
			{
				Type:   "latency",
				Target: "journal",
				Execute: func(context.Context) error {
					t.Faults.SetLatency(opts.Latency)
					return nil
				},
			},
			{
				Type:   "workload",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					return churn(ctx, t.Registry, opts)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-latency",
				Target: "journal",
				Execute: func(context.Context) error {
					t.Faults.Reset()
					return nil
				},
			},
		},
		Validation: consistencyAssertions(),
		Duration:   opts.Duration,
	}
}

// JournalOutageExperiment fails a share of journal appends while borrowers
// churn. Failed checkouts must give their copy back.
func JournalOutageExperiment(t *Target, opts Options) Experiment {
	opts = opts.withDefaults()
	var before int64

	metrics := append(consistencyMetrics(t), Metric{
		Name: "faults_injected",
		Query: func(context.Context) (float64, error) {
			return float64(t.Faults.Injected() - before), nil
		},
		Threshold: Threshold{Operator: ">=", Value: 0},
	})

	return Experiment{
		Name:        "journal-outage",
		Hypothesis:  "Checkouts whose journal append fails are compensated and leave no copy unaccounted for",
		SteadyState: metrics,
		Method: []Action{
			{
				Type:   "workload",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					// seed before the fault so setup itself cannot fail
					seeded, err := seed(ctx, t.Registry, opts)
					if err != nil {
						return err
					}
					before = t.Faults.Injected()
					t.Faults.SetFailureRate(opts.FailureRate)
					return seeded.run(ctx, t.Registry, opts)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "restore-journal",
				Target: "journal",
				Execute: func(context.Context) error {
					t.Faults.Reset()
					return nil
				},
			},
		},
		Validation: append(consistencyAssertions(), Assertion{
			Metric:    "faults_injected",
			Condition: func(v float64) bool { return v > 0 },
			Message:   "The outage should have failed at least one append",
		}),
		Duration: opts.Duration,
	}
}

type workload struct {
	items   []ids.ItemID
	members []ids.MemberID
}

func seed(ctx context.Context, reg *library.Registry, opts Options) (*workload, error) {
	items, err := addItems(ctx, reg, 1, 2, 3)
	if err != nil {
		return nil, err
	}
	members, err := addMembers(ctx, reg, opts.Concurrency)
	if err != nil {
		return nil, err
	}
	return &workload{items: items, members: members}, nil
}

func churn(ctx context.Context, reg *library.Registry, opts Options) error {
	w, err := seed(ctx, reg, opts)
	if err != nil {
		return err
	}
	return w.run(ctx, reg, opts)
}

// run has every member borrow and mostly return for opts.Rounds rounds.
// Rejections are expected and ignored.
func (w *workload) run(ctx context.Context, reg *library.Registry, opts Options) error {
	var wg sync.WaitGroup
	for i, m := range w.members {
		wg.Add(1)
		go func(i int, m ids.MemberID) {
			defer wg.Done()
			for r := 0; r < opts.Rounds; r++ {
				item := w.items[(i+r)%len(w.items)]
				loanID, err := reg.IssueLoan(ctx, m, item)
				if err != nil {
					continue
				}
				if r%3 != 2 {
					_, _ = reg.ReturnLoan(ctx, loanID)
				}
			}
		}(i, m)
	}
	wg.Wait()
	return nil
}

func addItems(ctx context.Context, reg *library.Registry, copies ...int) ([]ids.ItemID, error) {
	out := make([]ids.ItemID, 0, len(copies))
	for i, n := range copies {
		id, err := reg.AddCatalogItem(ctx, fmt.Sprintf("Chaos Volume %d", i+1), "Experiment", 2000, n)
		if err != nil {
			return nil, fmt.Errorf("seed item: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func addMembers(ctx context.Context, reg *library.Registry, n int) ([]ids.MemberID, error) {
	out := make([]ids.MemberID, 0, n)
	for i := 0; i < n; i++ {
		id, err := reg.RegisterBorrower(ctx, fmt.Sprintf("Borrower %d", i+1), fmt.Sprintf("borrower%d@chaos.test", i+1))
		if err != nil {
			return nil, fmt.Errorf("seed member: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}
