// internal/membership/domain.go
package membership

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"libralend/internal/apperrors"
	"libralend/internal/ids"
)

// MaxActiveLoans is the loan quota of every member.
const MaxActiveLoans = 3

// FineCeiling is the largest fine balance a member may carry.
var FineCeiling = decimal.NewFromInt(5000)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)

// Member is a registered borrower. Callers that need several calls to be
// atomic serialize per member themselves.
type Member struct {
	id    ids.MemberID
	name  string
	email string

	mu    sync.Mutex
	loans []ids.LoanID
	fine  decimal.Decimal
}

// NewMember validates name and email and builds a member with no loans and
// no fine.
func NewMember(id ids.MemberID, name, email string) (*Member, error) {
	name, email, err := normalize(name, email)
	if err != nil {
		return nil, err
	}
	return newMember(id, name, email), nil
}

func newMember(id ids.MemberID, name, email string) *Member {
	return &Member{id: id, name: name, email: email, fine: decimal.Zero}
}

func normalize(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", apperrors.Invalid("name", "required")
	}
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return "", "", apperrors.Invalid("email", "%q is not an address", email)
	}
	return name, email, nil
}

func (m *Member) ID() ids.MemberID { return m.id }
func (m *Member) Name() string     { return m.name }
func (m *Member) Email() string    { return m.email }

// Fine returns the accumulated fine.
func (m *Member) Fine() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fine
}

// ActiveLoans returns a copy of the open loan ids in the order they were
// issued.
func (m *Member) ActiveLoans() []ids.LoanID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ids.LoanID(nil), m.loans...)
}

// CanBorrow reports whether the member is under the loan quota and the fine
// ceiling.
func (m *Member) CanBorrow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loans) < MaxActiveLoans && m.fine.LessThanOrEqual(FineCeiling)
}

func (m *Member) AddLoan(id ids.LoanID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans = append(m.loans, id)
}

// RemoveLoan drops the first occurrence of id.
func (m *Member) RemoveLoan(id ids.LoanID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, loanID := range m.loans {
		if loanID == id {
			m.loans = append(m.loans[:i], m.loans[i+1:]...)
			return true
		}
	}
	return false
}

// AssessFine adds amount to the balance. The balance is left untouched when
// the amount is negative or the new total would pass FineCeiling.
func (m *Member) AssessFine(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.Invalid("fine", "amount %s is negative", amount.StringFixed(2))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.fine.Add(amount)
	if total.GreaterThan(FineCeiling) {
		return apperrors.Invalid("fine", "balance %s + %s exceeds the ceiling of %s",
			m.fine.StringFixed(2), amount.StringFixed(2), FineCeiling.StringFixed(2))
	}
	m.fine = total
	return nil
}

// MemberView is a read-only snapshot of a member.
type MemberView struct {
	ID          ids.MemberID    `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Fine        decimal.Decimal `json:"fine"`
	ActiveLoans int             `json:"active_loans"`
}

func (m *Member) View() MemberView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemberView{
		ID:          m.id,
		Name:        m.name,
		Email:       m.email,
		Fine:        m.fine,
		ActiveLoans: len(m.loans),
	}
}

func (v MemberView) String() string {
	return fmt.Sprintf("Member %d: %s — %s — Fines: %s — Active loans: %d",
		v.ID, v.Name, v.Email, v.Fine.StringFixed(2), v.ActiveLoans)
}

// MemberRegisteredEvent is journaled when a new member registers.
type MemberRegisteredEvent struct {
	ID    ids.MemberID `json:"id"`
	Email string       `json:"email"`
	Name  string       `json:"name"`
}
