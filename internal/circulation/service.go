// internal/circulation/service.go
package circulation

import (
	"context"

	"libralend/internal/catalog"
	"libralend/internal/ids"
	"libralend/internal/membership"
)

// Service defines the interface for the circulation service.
type Service interface {
	CheckoutItem(ctx context.Context, memberID ids.MemberID, itemID ids.ItemID) (*Loan, error)
	// ReturnItem returns (nil, nil) when the loan is unknown or already closed.
	ReturnItem(ctx context.Context, loanID ids.LoanID) (*Receipt, error)
	GetLoan(ctx context.Context, loanID ids.LoanID) (*Loan, error)
	LoansOfMember(ctx context.Context, memberID ids.MemberID) []LoanView
}

// ItemDirectory resolves catalog items. catalog.Service satisfies it.
type ItemDirectory interface {
	GetItem(ctx context.Context, id ids.ItemID) (*catalog.Item, error)
}

// MemberDirectory resolves members. membership.Service satisfies it.
type MemberDirectory interface {
	GetMember(ctx context.Context, id ids.MemberID) (*membership.Member, error)
}
