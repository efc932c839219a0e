// internal/catalog/service.go
package catalog

import (
	"context"

	"libralend/internal/ids"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddItem(ctx context.Context, title, author string, year, totalCopies int) (*Item, error)
	Add(ctx context.Context, item *Item) bool
	GetItem(ctx context.Context, id ids.ItemID) (*Item, error)
	ListItems(ctx context.Context) []ItemView
}
