// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"libralend/internal/apperrors"
	"libralend/internal/eventstore"
	"libralend/internal/ids"
	"libralend/internal/logger"
)

const aggregateType = "member"

// service implements the Service interface.
type service struct {
	seq         *ids.Sequence
	journal     eventstore.Journal
	rateLimiter *rate.Limiter
	log         *logger.Logger

	mu      sync.RWMutex
	members map[ids.MemberID]*Member
	order   []ids.MemberID
}

// RegistrationLimiter allows perMinute registrations with the given burst.
// A perMinute of 0 means unlimited.
func RegistrationLimiter(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(time.Duration(float64(time.Minute)/perMinute)), burst)
}

// NewService creates a new membership service instance. A nil limiter
// disables throttling.
func NewService(seq *ids.Sequence, journal eventstore.Journal, limiter *rate.Limiter, log *logger.Logger) Service {
	if limiter == nil {
		limiter = RegistrationLimiter(0, 0)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		seq:         seq,
		journal:     journal,
		rateLimiter: limiter,
		log:         log,
		members:     make(map[ids.MemberID]*Member),
	}
}

// RegisterMember creates a new member.
func (s *service) RegisterMember(ctx context.Context, name, email string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, fmt.Errorf("register member: %w", apperrors.ErrRateLimited)
	}

	name, email, err := normalize(name, email)
	if err != nil {
		return nil, fmt.Errorf("register member: %w", err)
	}
	member := newMember(s.seq.NextMemberID(), name, email)

	event, err := eventstore.NewEvent("MemberRegistered", MemberRegisteredEvent{
		ID:    member.ID(),
		Email: member.Email(),
		Name:  member.Name(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.journal.Append(ctx, aggregateType, member.ID().String(), event); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	s.mu.Lock()
	s.members[member.ID()] = member
	s.order = append(s.order, member.ID())
	s.mu.Unlock()

	s.log.Info(ctx, "member registered", zap.Int64("member_id", int64(member.ID())))
	return member, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(_ context.Context, id ids.MemberID) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[id]
	if !ok {
		return nil, apperrors.NotFound("member", id)
	}
	return member, nil
}

// ListMembers returns snapshots in registration order.
func (s *service) ListMembers(_ context.Context) []MemberView {
	return s.collect(func(MemberView) bool { return true })
}

// ListWithFines returns members whose fine balance is above zero.
func (s *service) ListWithFines(_ context.Context) []MemberView {
	return s.collect(func(v MemberView) bool { return v.Fine.IsPositive() })
}

func (s *service) collect(keep func(MemberView) bool) []MemberView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]MemberView, 0, len(s.order))
	for _, id := range s.order {
		if v := s.members[id].View(); keep(v) {
			views = append(views, v)
		}
	}
	return views
}
