package memory

import (
	"context"
	"sort"
	"sync"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MembershipEvent // keyed by event_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.MembershipEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(_ context.Context, e *domain.MembershipEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.EventID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[e.EventID] = copyEvent(e)
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.MembershipEvent) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
	}
	for _, e := range events {
		s.data[e.EventID] = copyEvent(e)
	}
	return nil
}

// GetByMembership retrieves all events for a membership, ordered by (slot, event_index) ASC.
func (s *EventStore) GetByMembership(_ context.Context, membership domain.PublicKey) ([]*domain.MembershipEvent, error) {
	return s.filter(func(e *domain.MembershipEvent) bool {
		return e.Membership == membership
	}), nil
}

// GetBySignature retrieves all events emitted by one transaction.
func (s *EventStore) GetBySignature(_ context.Context, signature string) ([]*domain.MembershipEvent, error) {
	return s.filter(func(e *domain.MembershipEvent) bool {
		return e.Signature == signature
	}), nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.MembershipEvent, error) {
	return s.filter(func(e *domain.MembershipEvent) bool {
		return e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *EventStore) filter(match func(*domain.MembershipEvent) bool) []*domain.MembershipEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MembershipEvent
	for _, e := range s.data {
		if match(e) {
			result = append(result, copyEvent(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].EventIndex < result[j].EventIndex
	})

	return result
}

func copyEvent(e *domain.MembershipEvent) *domain.MembershipEvent {
	eventCopy := *e
	if e.PreviousHolder != nil {
		prev := *e.PreviousHolder
		eventCopy.PreviousHolder = &prev
	}
	if e.TokenAccount != nil {
		acct := *e.TokenAccount
		eventCopy.TokenAccount = &acct
	}
	return &eventCopy
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
