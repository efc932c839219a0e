// internal/membership/service.go
package membership

import (
	"context"

	"libralend/internal/ids"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterMember(ctx context.Context, name, email string) (*Member, error)
	GetMember(ctx context.Context, id ids.MemberID) (*Member, error)
	ListMembers(ctx context.Context) []MemberView
	ListWithFines(ctx context.Context) []MemberView
}
