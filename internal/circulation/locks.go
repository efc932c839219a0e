package circulation

import (
	"sync"

	"libralend/internal/ids"
)

// lockTable hands out one mutex per member. Checkout and return hold the
// member's mutex for their whole sequence of steps; it is the only lock held
// across steps, so there is no ordering to get wrong.
type lockTable struct {
	locks sync.Map // ids.MemberID -> *sync.Mutex
}

func (t *lockTable) lock(id ids.MemberID) (unlock func()) {
	v, _ := t.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
