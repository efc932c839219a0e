// internal/circulation/domain.go
package circulation

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"libralend/internal/calendar"
	"libralend/internal/ids"
)

// LoanPeriodDays is how long a loan runs before fines start.
const LoanPeriodDays = 14

// FinePerDay is charged for every day a loan is returned past its due date.
var FinePerDay = decimal.NewFromInt(500)

type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
)

// Loan binds one member to one item copy. Once closed it never reopens and
// its return date never changes.
type Loan struct {
	id       ids.LoanID
	memberID ids.MemberID
	itemID   ids.ItemID
	loanDate calendar.Date
	dueDate  calendar.Date

	mu         sync.Mutex
	returnDate calendar.Date
	status     Status
}

// NewLoan opens a loan on today, due LoanPeriodDays later.
func NewLoan(id ids.LoanID, memberID ids.MemberID, itemID ids.ItemID, today calendar.Date) *Loan {
	return &Loan{
		id:       id,
		memberID: memberID,
		itemID:   itemID,
		loanDate: today,
		dueDate:  today.AddDays(LoanPeriodDays),
		status:   StatusActive,
	}
}

func (l *Loan) ID() ids.LoanID          { return l.id }
func (l *Loan) MemberID() ids.MemberID  { return l.memberID }
func (l *Loan) ItemID() ids.ItemID      { return l.itemID }
func (l *Loan) LoanDate() calendar.Date { return l.loanDate }
func (l *Loan) DueDate() calendar.Date  { return l.dueDate }

func (l *Loan) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loan) ReturnDate() calendar.Date {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.returnDate
}

// Fine is the amount owed for lateness, measured at the return date when the
// loan is closed and at asOf otherwise.
func (l *Loan) Fine(asOf calendar.Date) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fineLocked(asOf)
}

func (l *Loan) fineLocked(asOf calendar.Date) decimal.Decimal {
	ref := asOf
	if !l.returnDate.IsZero() {
		ref = l.returnDate
	}
	daysLate := calendar.DaysBetween(l.dueDate, ref)
	if daysLate <= 0 {
		return decimal.Zero
	}
	return FinePerDay.Mul(decimal.NewFromInt(int64(daysLate)))
}

// MarkReturned closes an active loan on today. It returns false, changing
// nothing, when the loan is already closed.
func (l *Loan) MarkReturned(today calendar.Date) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != StatusActive {
		return false
	}
	l.returnDate = today
	if l.fineLocked(today).IsPositive() {
		l.status = StatusOverdue
	} else {
		l.status = StatusReturned
	}
	return true
}

// LoanView is a read-only snapshot of a loan.
type LoanView struct {
	ID         ids.LoanID      `json:"id"`
	MemberID   ids.MemberID    `json:"member_id"`
	ItemID     ids.ItemID      `json:"item_id"`
	LoanDate   string          `json:"loan_date"`
	DueDate    string          `json:"due_date"`
	ReturnDate string          `json:"return_date,omitempty"`
	Status     Status          `json:"status"`
	Fine       decimal.Decimal `json:"fine"`
}

func (l *Loan) View(asOf calendar.Date) LoanView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoanView{
		ID:         l.id,
		MemberID:   l.memberID,
		ItemID:     l.itemID,
		LoanDate:   l.loanDate.String(),
		DueDate:    l.dueDate.String(),
		ReturnDate: l.returnDate.String(),
		Status:     l.status,
		Fine:       l.fineLocked(asOf),
	}
}

func (v LoanView) String() string {
	return fmt.Sprintf("Loan %d — Member:%d — Item:%s — Due:%s — Status:%s",
		v.ID, v.MemberID, v.ItemID, v.DueDate, v.Status)
}

// Receipt describes the outcome of a return.
type Receipt struct {
	Loan         LoanView
	CopyRestored bool
	FineAssessed decimal.Decimal
	// FineRejected is set when posting the fine would have pushed the member
	// past the fine ceiling. The return itself still stands.
	FineRejected error
}

// ItemCheckedOutEvent is journaled when an item is checked out.
type ItemCheckedOutEvent struct {
	LoanID   ids.LoanID   `json:"loan_id"`
	MemberID ids.MemberID `json:"member_id"`
	ItemID   ids.ItemID   `json:"item_id"`
	LoanDate string       `json:"loan_date"`
	DueDate  string       `json:"due_date"`
}

// CheckoutCompensatedEvent is journaled when a checkout is rolled back after
// the copy was taken.
type CheckoutCompensatedEvent struct {
	LoanID ids.LoanID `json:"loan_id"`
	ItemID ids.ItemID `json:"item_id"`
	Reason string     `json:"reason"`
}

// ItemReturnedEvent is journaled when an item is returned.
type ItemReturnedEvent struct {
	LoanID     ids.LoanID      `json:"loan_id"`
	MemberID   ids.MemberID    `json:"member_id"`
	ItemID     ids.ItemID      `json:"item_id"`
	ReturnDate string          `json:"return_date"`
	Status     Status          `json:"status"`
	Fine       decimal.Decimal `json:"fine"`
}

// FineEvent is journaled as FineAssessed or FineRejected.
type FineEvent struct {
	LoanID   ids.LoanID      `json:"loan_id"`
	MemberID ids.MemberID    `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason,omitempty"`
}
