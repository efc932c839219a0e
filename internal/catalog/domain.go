// internal/catalog/domain.go
package catalog

import (
	"fmt"
	"strings"
	"sync/atomic"

	"libralend/internal/apperrors"
	"libralend/internal/ids"
)

// MinPublishedYear is the earliest accepted publication year.
const MinPublishedYear = 1000

// Item is one title with a fixed pool of copies. The available count is
// updated lock-free and is always within [0, TotalCopies].
type Item struct {
	id          ids.ItemID
	title       string
	author      string
	year        int
	totalCopies int64
	available   atomic.Int64
}

// NewItem validates the attributes and then takes the next id from seq, so
// rejected items never consume an id.
func NewItem(seq *ids.Sequence, title, author string, year, totalCopies, currentYear int) (*Item, error) {
	if err := validateItem(year, totalCopies, currentYear); err != nil {
		return nil, err
	}
	return newItem(seq.NextItemID(), title, author, year, totalCopies), nil
}

func newItem(id ids.ItemID, title, author string, year, totalCopies int) *Item {
	item := &Item{
		id:          id,
		title:       strings.TrimSpace(title),
		author:      strings.TrimSpace(author),
		year:        year,
		totalCopies: int64(totalCopies),
	}
	item.available.Store(int64(totalCopies))
	return item
}

func validateItem(year, totalCopies, currentYear int) error {
	if year < MinPublishedYear || year > currentYear {
		return apperrors.Invalid("year", "%d is outside [%d, %d]", year, MinPublishedYear, currentYear)
	}
	if totalCopies <= 0 {
		return apperrors.Invalid("total_copies", "must be > 0, got %d", totalCopies)
	}
	return nil
}

func (i *Item) ID() ids.ItemID   { return i.id }
func (i *Item) Title() string    { return i.title }
func (i *Item) Author() string   { return i.author }
func (i *Item) Year() int        { return i.year }
func (i *Item) TotalCopies() int { return int(i.totalCopies) }
func (i *Item) Available() int   { return int(i.available.Load()) }

// Borrow takes one copy. It fails with ErrUnavailable only when the pool is
// genuinely empty; losing a race to another borrower just retries.
func (i *Item) Borrow() error {
	for {
		current := i.available.Load()
		if current <= 0 {
			return fmt.Errorf("no copies left of %q: %w", i.title, apperrors.ErrUnavailable)
		}
		if i.available.CompareAndSwap(current, current-1) {
			return nil
		}
	}
}

// Return puts one copy back. It is a no-op when every copy is already on the
// shelf and reports whether a copy was restored.
func (i *Item) Return() bool {
	for {
		current := i.available.Load()
		if current >= i.totalCopies {
			return false
		}
		if i.available.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// ItemView is a read-only snapshot of an item.
type ItemView struct {
	ID          ids.ItemID `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Year        int        `json:"published_year"`
	Available   int        `json:"available"`
	TotalCopies int        `json:"total_copies"`
}

func (i *Item) View() ItemView {
	return ItemView{
		ID:          i.id,
		Title:       i.title,
		Author:      i.author,
		Year:        i.year,
		Available:   i.Available(),
		TotalCopies: i.TotalCopies(),
	}
}

func (v ItemView) String() string {
	return fmt.Sprintf("%s — %s (%d) — ISBN:%s — Available:%d/%d",
		v.Title, v.Author, v.Year, v.ID, v.Available, v.TotalCopies)
}

// ItemAddedEvent is journaled when a new item enters the catalog.
type ItemAddedEvent struct {
	ID          ids.ItemID `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Year        int        `json:"published_year"`
	TotalCopies int        `json:"total_copies"`
}
