package storage

import (
	"context"

	"membership-registry/internal/domain"
)

// EventStore provides access to the membership_events audit log.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.MembershipEvent) error

	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, events []*domain.MembershipEvent) error

	// GetByMembership retrieves all events for a membership, ordered by (slot, event_index) ASC.
	GetByMembership(ctx context.Context, membership domain.PublicKey) ([]*domain.MembershipEvent, error)

	// GetBySignature retrieves all events emitted by one transaction.
	GetBySignature(ctx context.Context, signature string) ([]*domain.MembershipEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive, ms).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MembershipEvent, error)
}
