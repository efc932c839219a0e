// Package library is the composition root of the lending registry. A
// Registry owns the id sequences, the journal and the three services, and
// exposes the operations the drivers call.
package library

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"libralend/internal/calendar"
	"libralend/internal/catalog"
	"libralend/internal/circulation"
	"libralend/internal/eventstore"
	"libralend/internal/ids"
	"libralend/internal/logger"
	"libralend/internal/membership"
)

type Registry struct {
	journal     *eventstore.EventStore
	catalog     catalog.Service
	membership  membership.Service
	circulation circulation.Service
}

type options struct {
	clock      calendar.Clock
	catalogSeq *ids.Sequence
	log        *logger.Logger
	limiter    *rate.Limiter
	journal    *eventstore.EventStore
	decorate   func(eventstore.Journal) eventstore.Journal
}

type Option func(*options)

// WithClock sets the clock loans and publication years are measured against.
func WithClock(c calendar.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCatalogSequence replaces ids.DefaultCatalogSequence.
func WithCatalogSequence(seq *ids.Sequence) Option {
	return func(o *options) { o.catalogSeq = seq }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegistrationLimiter throttles RegisterBorrower.
func WithRegistrationLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

func WithJournal(j *eventstore.EventStore) Option {
	return func(o *options) { o.journal = j }
}

// WithJournalDecorator wraps the journal the services write through.
// Journal() still returns the undecorated store.
func WithJournalDecorator(decorate func(eventstore.Journal) eventstore.Journal) Option {
	return func(o *options) { o.decorate = decorate }
}

// New builds a Registry. Without options it uses the system clock, the
// process-wide catalog sequence, a fresh journal and no throttling.
func New(opts ...Option) *Registry {
	o := options{
		clock:      calendar.SystemClock{},
		catalogSeq: ids.DefaultCatalogSequence,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.journal == nil {
		o.journal = eventstore.NewEventStore()
	}
	if o.log == nil {
		o.log = logger.Nop()
	}

	var journal eventstore.Journal = o.journal
	if o.decorate != nil {
		journal = o.decorate(journal)
	}

	cat := catalog.NewService(o.catalogSeq, journal, o.clock, o.log.With(zap.String("component", "catalog")))
	mem := membership.NewService(ids.NewSequence(0), journal, o.limiter, o.log.With(zap.String("component", "membership")))
	circ := circulation.NewService(ids.NewSequence(0), journal, cat, mem, o.clock, o.log.With(zap.String("component", "circulation")))

	return &Registry{
		journal:     o.journal,
		catalog:     cat,
		membership:  mem,
		circulation: circ,
	}
}

func (r *Registry) Catalog() catalog.Service         { return r.catalog }
func (r *Registry) Membership() membership.Service   { return r.membership }
func (r *Registry) Circulation() circulation.Service { return r.circulation }
func (r *Registry) Journal() *eventstore.EventStore  { return r.journal }

// AddCatalogItem creates an item and returns its generated id.
func (r *Registry) AddCatalogItem(ctx context.Context, title, author string, year, totalCopies int) (ids.ItemID, error) {
	item, err := r.catalog.AddItem(ctx, title, author, year, totalCopies)
	if err != nil {
		return "", err
	}
	return item.ID(), nil
}

// RegisterBorrower creates a member and returns its generated id.
func (r *Registry) RegisterBorrower(ctx context.Context, name, email string) (ids.MemberID, error) {
	m, err := r.membership.RegisterMember(ctx, name, email)
	if err != nil {
		return 0, err
	}
	return m.ID(), nil
}

// IssueLoan lends one copy of itemID to memberID.
func (r *Registry) IssueLoan(ctx context.Context, memberID ids.MemberID, itemID ids.ItemID) (ids.LoanID, error) {
	loan, err := r.circulation.CheckoutItem(ctx, memberID, itemID)
	if err != nil {
		return 0, err
	}
	return loan.ID(), nil
}

// ReturnLoan closes a loan. It returns (nil, nil) when there is nothing to
// close.
func (r *Registry) ReturnLoan(ctx context.Context, loanID ids.LoanID) (*circulation.Receipt, error) {
	return r.circulation.ReturnItem(ctx, loanID)
}

func (r *Registry) ListCatalogItems(ctx context.Context) []catalog.ItemView {
	return r.catalog.ListItems(ctx)
}

func (r *Registry) LoansOfBorrower(ctx context.Context, memberID ids.MemberID) []circulation.LoanView {
	return r.circulation.LoansOfMember(ctx, memberID)
}

func (r *Registry) BorrowersWithPenalties(ctx context.Context) []membership.MemberView {
	return r.membership.ListWithFines(ctx)
}
