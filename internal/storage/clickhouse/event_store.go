package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `
	event_id, signature, slot, event_index, event_type,
	membership, principal, previous_holder, token_account, amount, timestamp_ms
`

// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.MembershipEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.MembershipEvent{e})
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.MembershipEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	// ReplacingMergeTree would silently collapse duplicates; keep append-only semantics
	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO membership_events (`+eventColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID,
			e.Signature,
			e.Slot,
			uint32(e.EventIndex),
			string(e.Type),
			e.Membership.String(),
			e.Principal.String(),
			keyPtrString(e.PreviousHolder),
			keyPtrString(e.TokenAccount),
			e.Amount,
			e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMembership retrieves all events for a membership, ordered by (slot, event_index) ASC.
func (s *EventStore) GetByMembership(ctx context.Context, membership domain.PublicKey) ([]*domain.MembershipEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM membership_events FINAL
		WHERE membership = ?
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, membership.String())
	if err != nil {
		return nil, fmt.Errorf("query by membership: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetBySignature retrieves all events emitted by one transaction.
func (s *EventStore) GetBySignature(ctx context.Context, signature string) ([]*domain.MembershipEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM membership_events FINAL
		WHERE signature = ?
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, signature)
	if err != nil {
		return nil, fmt.Errorf("query by signature: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MembershipEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM membership_events FINAL
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY slot ASC, event_index ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// exists checks if an event with the given ID exists.
func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM membership_events WHERE event_id = ?`,
		eventID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEvents scans multiple rows into a slice of MembershipEvent.
func scanEvents(rows driver.Rows) ([]*domain.MembershipEvent, error) {
	var events []*domain.MembershipEvent

	for rows.Next() {
		var (
			e              domain.MembershipEvent
			eventIndex     uint32
			eventType      string
			membership     string
			principal      string
			previousHolder *string
			tokenAccount   *string
		)

		err := rows.Scan(
			&e.EventID,
			&e.Signature,
			&e.Slot,
			&eventIndex,
			&eventType,
			&membership,
			&principal,
			&previousHolder,
			&tokenAccount,
			&e.Amount,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.EventIndex = int(eventIndex)
		e.Type = domain.EventType(eventType)
		if e.Membership, err = domain.ParsePublicKey(membership); err != nil {
			return nil, fmt.Errorf("parse membership: %w", err)
		}
		if e.Principal, err = domain.ParsePublicKey(principal); err != nil {
			return nil, fmt.Errorf("parse principal: %w", err)
		}
		if e.PreviousHolder, err = parseKeyPtr(previousHolder); err != nil {
			return nil, fmt.Errorf("parse previous holder: %w", err)
		}
		if e.TokenAccount, err = parseKeyPtr(tokenAccount); err != nil {
			return nil, fmt.Errorf("parse token account: %w", err)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

func keyPtrString(pk *domain.PublicKey) *string {
	if pk == nil {
		return nil
	}
	s := pk.String()
	return &s
}

func parseKeyPtr(s *string) (*domain.PublicKey, error) {
	if s == nil {
		return nil, nil
	}
	pk, err := domain.ParsePublicKey(*s)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}
