package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
)

// Ledger implements storage.Ledger using PostgreSQL.
//
// Reads go straight to the pool; writes are buffered in the transaction and
// applied in a single serializable pgx transaction at Commit, guarded by
// per-row version checks. Commits hold an exclusive lock on ledger_slot from
// before their snapshot is taken until they finish, so they apply one at a
// time and slot order matches commit order.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Begin starts a new optimistic transaction.
func (l *Ledger) Begin(_ context.Context) (storage.Txn, error) {
	return &txn{
		pool:   l.pool,
		reads:  make(map[domain.PublicKey]uint64),
		writes: make(map[domain.PublicKey]*storage.Account),
	}, nil
}

// GetAccount reads the committed state of an account.
func (l *Ledger) GetAccount(ctx context.Context, address domain.PublicKey) (*storage.Account, error) {
	acc, err := getAccount(ctx, l.pool, address)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// CurrentSlot returns the slot of the most recent commit.
func (l *Ledger) CurrentSlot(ctx context.Context) (uint64, error) {
	var slot int64
	err := l.pool.QueryRow(ctx, `SELECT slot FROM ledger_slot`).Scan(&slot)
	if err != nil {
		return 0, fmt.Errorf("get current slot: %w", err)
	}
	return uint64(slot), nil
}

type txn struct {
	pool   *Pool
	reads  map[domain.PublicKey]uint64
	writes map[domain.PublicKey]*storage.Account
	order  []domain.PublicKey
	closed bool
}

// Get returns the account as seen by this transaction.
func (t *txn) Get(ctx context.Context, address domain.PublicKey) (*storage.Account, error) {
	if t.closed {
		return nil, storage.ErrTxnClosed
	}

	if acc, ok := t.writes[address]; ok {
		accountCopy := *acc
		accountCopy.Data = append([]byte(nil), acc.Data...)
		return &accountCopy, nil
	}

	acc, err := getAccount(ctx, t.pool, address)
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("get account: %w", err)
	}

	if _, seen := t.reads[address]; !seen {
		var version uint64
		if acc != nil {
			version = acc.Version
		}
		t.reads[address] = version
	}

	if acc == nil {
		return nil, storage.ErrNotFound
	}
	return acc, nil
}

// Put buffers a write.
func (t *txn) Put(ctx context.Context, account *storage.Account) error {
	if t.closed {
		return storage.ErrTxnClosed
	}
	if account == nil || !account.Kind.IsValid() || account.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	if _, seen := t.reads[account.Address]; !seen {
		if _, err := t.Get(ctx, account.Address); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	if _, buffered := t.writes[account.Address]; !buffered {
		t.order = append(t.order, account.Address)
	}
	accountCopy := *account
	accountCopy.Data = append([]byte(nil), account.Data...)
	t.writes[account.Address] = &accountCopy
	return nil
}

// Commit validates observed versions and applies buffered writes.
func (t *txn) Commit(ctx context.Context) (uint64, error) {
	if t.closed {
		return 0, storage.ErrTxnClosed
	}
	t.closed = true

	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Must run before any SELECT or DML: a serializable snapshot is taken at
	// the first such statement, and it has to see every earlier commit.
	if _, err := tx.Exec(ctx, `LOCK TABLE ledger_slot IN EXCLUSIVE MODE`); err != nil {
		return 0, t.commitError("lock slot", err)
	}

	// Read-only observations
	for address, observed := range t.reads {
		if _, written := t.writes[address]; written {
			continue
		}
		var version int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM accounts WHERE address = $1 FOR SHARE`,
			address.String(),
		).Scan(&version)
		if err != nil {
			if !isNotFoundError(err) {
				return 0, t.commitError("validate read", err)
			}
			version = 0
		}
		if uint64(version) != observed {
			return 0, storage.ErrConflict
		}
	}

	var slot int64
	if err := tx.QueryRow(ctx, `UPDATE ledger_slot SET slot = slot + 1 RETURNING slot`).Scan(&slot); err != nil {
		return 0, t.commitError("next slot", err)
	}

	for _, address := range t.order {
		acc := t.writes[address]
		observed := t.reads[address]

		if observed == 0 {
			ct, err := tx.Exec(ctx, `
				INSERT INTO accounts (address, kind, data, version, slot)
				VALUES ($1, $2, $3, 1, $4)
				ON CONFLICT (address) DO NOTHING
			`, address.String(), string(acc.Kind), acc.Data, slot)
			if err != nil {
				return 0, t.commitError("insert account", err)
			}
			if ct.RowsAffected() == 0 {
				return 0, storage.ErrConflict
			}
		} else {
			ct, err := tx.Exec(ctx, `
				UPDATE accounts
				SET kind = $2, data = $3, version = version + 1, slot = $4, updated_at = now()
				WHERE address = $1 AND version = $5
			`, address.String(), string(acc.Kind), acc.Data, slot, int64(observed))
			if err != nil {
				return 0, t.commitError("update account", err)
			}
			if ct.RowsAffected() == 0 {
				return 0, storage.ErrConflict
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, t.commitError("commit tx", err)
	}

	return uint64(slot), nil
}

// Rollback discards buffered writes.
func (t *txn) Rollback(_ context.Context) error {
	t.closed = true
	t.writes = nil
	t.order = nil
	return nil
}

func (t *txn) commitError(op string, err error) error {
	if isConflictError(err) || isDuplicateKeyError(err) {
		return storage.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

// getAccount scans a single account row.
func getAccount(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, address domain.PublicKey) (*storage.Account, error) {
	query := `
		SELECT kind, data, version, slot
		FROM accounts
		WHERE address = $1
	`

	var (
		acc     storage.Account
		kind    string
		version int64
		slot    int64
	)
	err := q.QueryRow(ctx, query, address.String()).Scan(&kind, &acc.Data, &version, &slot)
	if err != nil {
		return nil, err
	}

	acc.Address = address
	acc.Kind = storage.AccountKind(kind)
	acc.Version = uint64(version)
	acc.Slot = uint64(slot)
	return &acc, nil
}
