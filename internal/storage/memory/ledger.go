package memory

import (
	"context"
	"sync"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
)

// Ledger is an in-memory implementation of storage.Ledger.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[domain.PublicKey]*storage.Account // keyed by address
	slot     uint64
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[domain.PublicKey]*storage.Account),
	}
}

// Begin starts a new optimistic transaction.
func (l *Ledger) Begin(_ context.Context) (storage.Txn, error) {
	return &txn{
		ledger: l,
		reads:  make(map[domain.PublicKey]uint64),
		writes: make(map[domain.PublicKey]*storage.Account),
	}, nil
}

// GetAccount reads the committed state of an account.
func (l *Ledger) GetAccount(_ context.Context, address domain.PublicKey) (*storage.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, exists := l.accounts[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyAccount(acc), nil
}

// CurrentSlot returns the slot of the most recent commit.
func (l *Ledger) CurrentSlot(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slot, nil
}

// versionOf returns the committed version of address, 0 if absent.
// Caller must hold l.mu.
func (l *Ledger) versionOf(address domain.PublicKey) uint64 {
	if acc, ok := l.accounts[address]; ok {
		return acc.Version
	}
	return 0
}

// txn buffers writes and remembers the version of every account it observed.
type txn struct {
	ledger *Ledger
	reads  map[domain.PublicKey]uint64
	writes map[domain.PublicKey]*storage.Account
	order  []domain.PublicKey
	closed bool
}

// Get returns the account as seen by this transaction.
func (t *txn) Get(_ context.Context, address domain.PublicKey) (*storage.Account, error) {
	if t.closed {
		return nil, storage.ErrTxnClosed
	}

	if acc, ok := t.writes[address]; ok {
		return copyAccount(acc), nil
	}

	t.ledger.mu.RLock()
	acc, exists := t.ledger.accounts[address]
	version := t.ledger.versionOf(address)
	var result *storage.Account
	if exists {
		result = copyAccount(acc)
	}
	t.ledger.mu.RUnlock()

	if _, seen := t.reads[address]; !seen {
		t.reads[address] = version
	}

	if result == nil {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// Put buffers a write.
func (t *txn) Put(_ context.Context, account *storage.Account) error {
	if t.closed {
		return storage.ErrTxnClosed
	}
	if account == nil || !account.Kind.IsValid() || account.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	// Blind writes are validated against the version current at Put time.
	if _, seen := t.reads[account.Address]; !seen {
		t.ledger.mu.RLock()
		t.reads[account.Address] = t.ledger.versionOf(account.Address)
		t.ledger.mu.RUnlock()
	}

	if _, buffered := t.writes[account.Address]; !buffered {
		t.order = append(t.order, account.Address)
	}
	t.writes[account.Address] = copyAccount(account)
	return nil
}

// Commit validates observed versions and applies buffered writes.
func (t *txn) Commit(_ context.Context) (uint64, error) {
	if t.closed {
		return 0, storage.ErrTxnClosed
	}
	t.closed = true

	l := t.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	for address, observed := range t.reads {
		if l.versionOf(address) != observed {
			return 0, storage.ErrConflict
		}
	}

	l.slot++
	for _, address := range t.order {
		acc := copyAccount(t.writes[address])
		acc.Version = l.versionOf(address) + 1
		acc.Slot = l.slot
		l.accounts[address] = acc
	}

	return l.slot, nil
}

// Rollback discards buffered writes.
func (t *txn) Rollback(_ context.Context) error {
	t.closed = true
	t.writes = nil
	t.order = nil
	return nil
}

func copyAccount(acc *storage.Account) *storage.Account {
	accountCopy := *acc
	accountCopy.Data = append([]byte(nil), acc.Data...)
	return &accountCopy
}

// Verify interface compliance at compile time.
var _ storage.Ledger = (*Ledger)(nil)
