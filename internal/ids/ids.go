// internal/ids/ids.go
package ids

import (
	"strconv"
	"sync/atomic"
)

// ItemID identifies a catalog item. It is rendered like an ISBN.
type ItemID string

// MemberID identifies a borrower.
type MemberID int64

// LoanID identifies a loan.
type LoanID int64

func (id MemberID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id LoanID) String() string   { return strconv.FormatInt(int64(id), 10) }

// CatalogBase is the seed of the process-wide catalog sequence.
const CatalogBase int64 = 1_000_000_000_000

// DefaultCatalogSequence hands out catalog item identifiers for every
// registry that is not given its own sequence, so ids stay unique across
// registries in one process.
var DefaultCatalogSequence = NewSequence(CatalogBase)

// Sequence is a monotonically increasing, goroutine-safe id generator.
// Next returns seed+1 on the first call.
type Sequence struct {
	last atomic.Int64
}

// NewSequence creates a sequence whose first value is seed+1.
func NewSequence(seed int64) *Sequence {
	s := &Sequence{}
	s.last.Store(seed)
	return s
}

// Next returns the next value.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently issued value (the seed if none).
func (s *Sequence) Last() int64 {
	return s.last.Load()
}

// Reset rewinds the sequence. Intended for tests.
func (s *Sequence) Reset(seed int64) {
	s.last.Store(seed)
}

// NextItemID formats the next value as an ItemID.
func (s *Sequence) NextItemID() ItemID {
	return ItemID(strconv.FormatInt(s.Next(), 10))
}

// NextMemberID returns the next value as a MemberID.
func (s *Sequence) NextMemberID() MemberID {
	return MemberID(s.Next())
}

// NextLoanID returns the next value as a LoanID.
func (s *Sequence) NextLoanID() LoanID {
	return LoanID(s.Next())
}
