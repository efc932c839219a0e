// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"libralend/internal/apperrors"
	"libralend/internal/calendar"
	"libralend/internal/eventstore"
	"libralend/internal/ids"
	"libralend/internal/logger"
	"libralend/internal/membership"
)

const aggregateType = "loan"

// service implements the Service interface.
type service struct {
	seq     *ids.Sequence
	journal eventstore.Journal
	items   ItemDirectory
	members MemberDirectory
	clock   calendar.Clock
	log     *logger.Logger
	tracer  trace.Tracer

	issued   metric.Int64Counter
	rejected metric.Int64Counter
	returned metric.Int64Counter

	locks lockTable

	mu       sync.RWMutex
	loans    map[ids.LoanID]*Loan
	byMember map[ids.MemberID][]ids.LoanID
}

// NewService creates a new circulation service instance.
func NewService(seq *ids.Sequence, journal eventstore.Journal, items ItemDirectory, members MemberDirectory, clock calendar.Clock, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	meter := otel.Meter("libralend/circulation")
	s := &service{
		seq:      seq,
		journal:  journal,
		items:    items,
		members:  members,
		clock:    clock,
		log:      log,
		tracer:   otel.Tracer("libralend/circulation"),
		loans:    make(map[ids.LoanID]*Loan),
		byMember: make(map[ids.MemberID][]ids.LoanID),
	}
	s.issued = newCounter(meter, "libralend.loans.issued", "Loans issued", log)
	s.rejected = newCounter(meter, "libralend.loans.rejected", "Checkout attempts rejected", log)
	s.returned = newCounter(meter, "libralend.loans.returned", "Loans closed by a return", log)
	return s
}

func newCounter(meter metric.Meter, name, desc string, log *logger.Logger) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		log.Warn(context.Background(), "failed to create counter", zap.String("name", name), zap.Error(err))
	}
	return c
}

// CheckoutItem orchestrates the checkout. The member's lock is held from the
// quota check until the loan is recorded on the member.
func (s *service) CheckoutItem(ctx context.Context, memberID ids.MemberID, itemID ids.ItemID) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.CheckoutItem", trace.WithAttributes(
		attribute.Int64("member.id", int64(memberID)),
		attribute.String("item.id", string(itemID)),
	))
	defer span.End()

	loan, err := s.checkout(ctx, memberID, itemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(ctx, s.rejected, attribute.String("reason", rejectReason(err)))
		s.log.Info(ctx, "checkout rejected",
			zap.Int64("member_id", int64(memberID)),
			zap.String("item_id", string(itemID)),
			zap.Error(err))
		return nil, err
	}

	s.count(ctx, s.issued)
	s.log.Info(ctx, "item checked out",
		zap.Int64("loan_id", int64(loan.ID())),
		zap.Int64("member_id", int64(memberID)),
		zap.String("item_id", string(itemID)),
		zap.String("due_date", loan.DueDate().String()))
	return loan, nil
}

func (s *service) checkout(ctx context.Context, memberID ids.MemberID, itemID ids.ItemID) (*Loan, error) {
	// Step 1: Validate the member
	member, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	unlock := s.locks.lock(memberID)
	defer unlock()

	if !member.CanBorrow() {
		return nil, fmt.Errorf("member %d: %w", memberID, apperrors.ErrQuotaExceeded)
	}

	// Step 2: Take a copy
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if err := item.Borrow(); err != nil {
		return nil, err
	}

	loan := NewLoan(s.seq.NextLoanID(), memberID, itemID, calendar.Today(s.clock))

	// Compensation function for taking the copy
	compensation := func(cause error) {
		s.log.Warn(ctx, "compensating failed checkout",
			zap.Int64("loan_id", int64(loan.ID())),
			zap.String("item_id", string(itemID)),
			zap.Error(cause))
		if !item.Return() {
			s.log.Error(ctx, "failed to compensate item availability", zap.String("item_id", string(itemID)))
		}
		s.appendBestEffort(ctx, loan.ID(), "CheckoutCompensated", CheckoutCompensatedEvent{
			LoanID: loan.ID(),
			ItemID: itemID,
			Reason: cause.Error(),
		})
	}

	// Step 3: Journal the loan
	event, err := eventstore.NewEvent("ItemCheckedOut", ItemCheckedOutEvent{
		LoanID:   loan.ID(),
		MemberID: memberID,
		ItemID:   itemID,
		LoanDate: loan.LoanDate().String(),
		DueDate:  loan.DueDate().String(),
	})
	if err != nil {
		compensation(err)
		return nil, err
	}
	if err := s.journal.Append(ctx, aggregateType, loan.ID().String(), event); err != nil {
		compensation(err)
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	// Step 4: Record the loan
	s.store(loan)
	member.AddLoan(loan.ID())
	return loan, nil
}

// ReturnItem closes an active loan, restores the copy and posts any fine.
func (s *service) ReturnItem(ctx context.Context, loanID ids.LoanID) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.ReturnItem", trace.WithAttributes(
		attribute.Int64("loan.id", int64(loanID)),
	))
	defer span.End()

	loan, ok := s.lookup(loanID)
	if !ok {
		s.log.Debug(ctx, "return of unknown loan ignored", zap.Int64("loan_id", int64(loanID)))
		return nil, nil
	}

	unlock := s.locks.lock(loan.MemberID())
	defer unlock()

	today := calendar.Today(s.clock)
	if !loan.MarkReturned(today) {
		s.log.Debug(ctx, "return of closed loan ignored", zap.Int64("loan_id", int64(loanID)))
		return nil, nil
	}

	receipt := &Receipt{}
	if item, err := s.items.GetItem(ctx, loan.ItemID()); err == nil {
		receipt.CopyRestored = item.Return()
	}
	if !receipt.CopyRestored {
		s.log.Warn(ctx, "returned copy was not restored", zap.String("item_id", string(loan.ItemID())))
	}

	fine := loan.Fine(today)
	receipt.Loan = loan.View(today)
	s.appendBestEffort(ctx, loanID, "ItemReturned", ItemReturnedEvent{
		LoanID:     loanID,
		MemberID:   loan.MemberID(),
		ItemID:     loan.ItemID(),
		ReturnDate: today.String(),
		Status:     receipt.Loan.Status,
		Fine:       fine,
	})

	member, err := s.members.GetMember(ctx, loan.MemberID())
	if err != nil {
		s.log.Error(ctx, "loan belongs to unknown member", zap.Int64("member_id", int64(loan.MemberID())))
	} else {
		member.RemoveLoan(loanID)
		if fine.IsPositive() {
			s.postFine(ctx, member, loanID, fine, receipt)
		}
	}

	s.count(ctx, s.returned, attribute.String("status", string(receipt.Loan.Status)))
	s.log.Info(ctx, "item returned",
		zap.Int64("loan_id", int64(loanID)),
		zap.String("status", string(receipt.Loan.Status)),
		zap.String("fine", fine.StringFixed(2)))
	return receipt, nil
}

func (s *service) postFine(ctx context.Context, member *membership.Member, loanID ids.LoanID, fine decimal.Decimal, receipt *Receipt) {
	if err := member.AssessFine(fine); err != nil {
		receipt.FineRejected = err
		s.log.Warn(ctx, "fine not posted",
			zap.Int64("member_id", int64(member.ID())),
			zap.Int64("loan_id", int64(loanID)),
			zap.String("amount", fine.StringFixed(2)),
			zap.Error(err))
		s.appendBestEffort(ctx, loanID, "FineRejected", FineEvent{
			LoanID:   loanID,
			MemberID: member.ID(),
			Amount:   fine,
			Reason:   err.Error(),
		})
		return
	}
	receipt.FineAssessed = fine
	s.appendBestEffort(ctx, loanID, "FineAssessed", FineEvent{
		LoanID:   loanID,
		MemberID: member.ID(),
		Amount:   fine,
	})
}

// appendBestEffort journals an event whose state change has already
// happened. Failures are logged.
func (s *service) appendBestEffort(ctx context.Context, loanID ids.LoanID, eventType string, payload any) {
	event, err := eventstore.NewEvent(eventType, payload)
	if err == nil {
		err = s.journal.Append(ctx, aggregateType, loanID.String(), event)
	}
	if err != nil {
		s.log.Error(ctx, "failed to journal event",
			zap.String("event_type", eventType),
			zap.Int64("loan_id", int64(loanID)),
			zap.Error(err))
	}
}

// GetLoan retrieves a loan by its ID.
func (s *service) GetLoan(_ context.Context, loanID ids.LoanID) (*Loan, error) {
	loan, ok := s.lookup(loanID)
	if !ok {
		return nil, apperrors.NotFound("loan", loanID)
	}
	return loan, nil
}

// LoansOfMember returns every loan the member ever held, oldest first.
func (s *service) LoansOfMember(_ context.Context, memberID ids.MemberID) []LoanView {
	today := calendar.Today(s.clock)

	s.mu.RLock()
	defer s.mu.RUnlock()

	loanIDs := s.byMember[memberID]
	views := make([]LoanView, 0, len(loanIDs))
	for _, id := range loanIDs {
		views = append(views, s.loans[id].View(today))
	}
	return views
}

func (s *service) store(loan *Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID()] = loan
	s.byMember[loan.MemberID()] = append(s.byMember[loan.MemberID()], loan.ID())
}

func (s *service) lookup(id ids.LoanID) (*Loan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	return loan, ok
}

func (s *service) count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func rejectReason(err error) string {
	switch {
	case apperrors.IsNotFound(err):
		return "not_found"
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, apperrors.ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
