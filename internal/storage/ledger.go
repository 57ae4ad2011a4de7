package storage

import (
	"context"

	"membership-registry/internal/domain"
)

// AccountKind tags the data layout stored in an account.
type AccountKind string

const (
	KindAuthority    AccountKind = "authority"
	KindMembership   AccountKind = "membership"
	KindMint         AccountKind = "mint"
	KindTokenAccount AccountKind = "token_account"
	KindReceipt      AccountKind = "receipt"
)

// String returns the string representation of AccountKind.
func (k AccountKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k AccountKind) IsValid() bool {
	switch k {
	case KindAuthority, KindMembership, KindMint, KindTokenAccount, KindReceipt:
		return true
	}
	return false
}

// Account is one ledger entry stored at a deterministic address.
type Account struct {
	Address domain.PublicKey
	Kind    AccountKind
	Data    []byte // CBOR-encoded record
	Version uint64 // incremented on every committed write; 0 means absent
	Slot    uint64 // slot of the last committed write
}

// Ledger provides transactional access to accounts.
//
// Transactions are optimistic: Get records the version it observed, Put
// buffers the write, and Commit applies all buffered writes only if every
// observed version is still current. Conflicting commits fail with
// ErrConflict and apply nothing.
type Ledger interface {
	// Begin starts a new transaction.
	Begin(ctx context.Context) (Txn, error)

	// GetAccount reads the committed state of an account outside any
	// transaction. Returns ErrNotFound if absent.
	GetAccount(ctx context.Context, address domain.PublicKey) (*Account, error)

	// CurrentSlot returns the slot of the most recent commit.
	CurrentSlot(ctx context.Context) (uint64, error)
}

// Txn is a single atomic unit of work.
type Txn interface {
	// Get returns the account as seen by this transaction (including its own
	// buffered writes). Returns ErrNotFound if absent; absence is also
	// recorded as an observation and validated at commit.
	Get(ctx context.Context, address domain.PublicKey) (*Account, error)

	// Put buffers a write. The account's Kind and Data are stored; Version
	// and Slot are assigned at commit.
	Put(ctx context.Context, account *Account) error

	// Commit validates observed versions and applies buffered writes.
	// Returns the slot assigned to this transaction.
	Commit(ctx context.Context) (uint64, error)

	// Rollback discards buffered writes. Safe to call after Commit.
	Rollback(ctx context.Context) error
}
