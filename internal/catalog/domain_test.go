package catalog

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libralend/internal/apperrors"
	"libralend/internal/ids"
)

const thisYear = 2026

func TestNewItem_Validation(t *testing.T) {
	seq := ids.NewSequence(ids.CatalogBase)

	tests := []struct {
		name   string
		year   int
		copies int
		field  string
	}{
		{"year too early", 999, 1, "year"},
		{"year in the future", thisYear + 1, 1, "year"},
		{"zero copies", 1999, 0, "total_copies"},
		{"negative copies", 1999, -2, "total_copies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewItem(seq, "Dune", "Frank Herbert", tt.year, tt.copies, thisYear)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	// rejected items do not burn ids
	assert.Equal(t, ids.CatalogBase, seq.Last())

	item, err := NewItem(seq, " Dune ", "Frank Herbert", MinPublishedYear, 2, thisYear)
	require.NoError(t, err)
	assert.Equal(t, ids.ItemID("1000000000001"), item.ID())
	assert.Equal(t, "Dune", item.Title())
	assert.Equal(t, 2, item.Available())
	assert.Equal(t, 2, item.TotalCopies())
}

func TestItem_BorrowUntilEmpty(t *testing.T) {
	item := newItem("x", "Dune", "Frank Herbert", 1965, 2)

	require.NoError(t, item.Borrow())
	require.NoError(t, item.Borrow())
	err := item.Borrow()
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, 0, item.Available())
}

func TestItem_ReturnIsNoOpAtCeiling(t *testing.T) {
	item := newItem("x", "Dune", "Frank Herbert", 1965, 1)

	assert.False(t, item.Return())
	assert.Equal(t, 1, item.Available())

	require.NoError(t, item.Borrow())
	assert.True(t, item.Return())
	assert.False(t, item.Return())
	assert.Equal(t, 1, item.Available())
}

func TestItem_ConcurrentBorrowersGetExactlyTheAvailableCopies(t *testing.T) {
	const copies, borrowers = 7, 64
	item := newItem("x", "Dune", "Frank Herbert", 1965, copies)

	var ok, unavailable atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := item.Borrow(); err != nil {
				assert.ErrorIs(t, err, apperrors.ErrUnavailable)
				unavailable.Add(1)
				return
			}
			ok.Add(1)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(copies), ok.Load())
	assert.Equal(t, int64(borrowers-copies), unavailable.Load())
	assert.Equal(t, 0, item.Available())
	assert.ErrorIs(t, item.Borrow(), apperrors.ErrUnavailable)
}

func TestItem_ConcurrentReturnsNeverExceedTotal(t *testing.T) {
	const copies = 5
	item := newItem("x", "Dune", "Frank Herbert", 1965, copies)
	for i := 0; i < 3; i++ {
		require.NoError(t, item.Borrow())
	}

	var restored atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if item.Return() {
				restored.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), restored.Load())
	assert.Equal(t, copies, item.Available())
}

func TestItem_AvailabilityStaysInBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 20).Draw(t, "total")
		item := newItem("x", "t", "a", 2000, total)

		ops := rapid.SliceOf(rapid.Bool()).Draw(t, "borrow?")
		expected := total
		for _, borrow := range ops {
			if borrow {
				err := item.Borrow()
				if expected == 0 {
					if err == nil {
						t.Fatalf("borrow succeeded on an empty pool")
					}
				} else {
					if err != nil {
						t.Fatalf("borrow failed with %d available: %v", expected, err)
					}
					expected--
				}
			} else if item.Return() {
				expected++
			}

			got := item.Available()
			if got != expected || got < 0 || got > total {
				t.Fatalf("available = %d, want %d within [0, %d]", got, expected, total)
			}
		}
	})
}

func TestItemView_String(t *testing.T) {
	item := newItem("1000000000007", "Dune", "Frank Herbert", 1965, 3)
	require.NoError(t, item.Borrow())

	assert.Equal(t, "Dune — Frank Herbert (1965) — ISBN:1000000000007 — Available:2/3", item.View().String())
}
