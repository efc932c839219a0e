// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"libralend/internal/apperrors"
	"libralend/internal/calendar"
	"libralend/internal/eventstore"
	"libralend/internal/ids"
	"libralend/internal/logger"
)

const aggregateType = "item"

// service implements the Service interface.
type service struct {
	seq     *ids.Sequence
	journal eventstore.Journal
	clock   calendar.Clock
	log     *logger.Logger

	mu    sync.RWMutex
	items map[ids.ItemID]*Item
	order []ids.ItemID
}

// NewService creates a new catalog service instance.
func NewService(seq *ids.Sequence, journal eventstore.Journal, clock calendar.Clock, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		seq:     seq,
		journal: journal,
		clock:   clock,
		log:     log,
		items:   make(map[ids.ItemID]*Item),
	}
}

// AddItem creates a new item in the catalog.
func (s *service) AddItem(ctx context.Context, title, author string, year, totalCopies int) (*Item, error) {
	item, err := NewItem(s.seq, title, author, year, totalCopies, calendar.Today(s.clock).Year())
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	event, err := eventstore.NewEvent("ItemAdded", ItemAddedEvent{
		ID:          item.ID(),
		Title:       item.Title(),
		Author:      item.Author(),
		Year:        item.Year(),
		TotalCopies: item.TotalCopies(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.journal.Append(ctx, aggregateType, string(item.ID()), event); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	s.Add(ctx, item)
	s.log.Info(ctx, "item added",
		zap.String("item_id", string(item.ID())),
		zap.String("title", item.Title()),
		zap.Int("total_copies", item.TotalCopies()))
	return item, nil
}

// Add stores item unless its id is already taken. The first write wins.
func (s *service) Add(ctx context.Context, item *Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID()]; exists {
		s.log.Debug(ctx, "duplicate item id ignored", zap.String("item_id", string(item.ID())))
		return false
	}
	s.items[item.ID()] = item
	s.order = append(s.order, item.ID())
	return true
}

// GetItem retrieves an item from the catalog by its ID.
func (s *service) GetItem(_ context.Context, id ids.ItemID) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, apperrors.NotFound("item", id)
	}
	return item, nil
}

// ListItems returns snapshots in the order items were added.
func (s *service) ListItems(_ context.Context) []ItemView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]ItemView, 0, len(s.order))
	for _, id := range s.order {
		views = append(views, s.items[id].View())
	}
	return views
}
