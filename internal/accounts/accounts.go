// Package accounts loads and stores typed domain records over a ledger
// transaction. Each record lives at its own address with a kind tag and
// CBOR-encoded data.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"membership-registry/internal/codec"
	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
)

// ErrKindMismatch is returned when an account holds a different record kind.
var ErrKindMismatch = errors.New("account kind mismatch")

// load reads the account at address and decodes it into v.
// Returns storage.ErrNotFound if absent, ErrKindMismatch if the kind differs.
func load(ctx context.Context, txn storage.Txn, address domain.PublicKey, kind storage.AccountKind, v any) error {
	acc, err := txn.Get(ctx, address)
	if err != nil {
		return err
	}
	return decode(acc, kind, v)
}

func decode(acc *storage.Account, kind storage.AccountKind, v any) error {
	if acc.Kind != kind {
		return fmt.Errorf("%w: %s holds %s, want %s", ErrKindMismatch, acc.Address, acc.Kind, kind)
	}
	if err := codec.Unmarshal(acc.Data, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, acc.Address, err)
	}
	return nil
}

func store(ctx context.Context, txn storage.Txn, address domain.PublicKey, kind storage.AccountKind, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return txn.Put(ctx, &storage.Account{Address: address, Kind: kind, Data: data})
}

// Exists reports whether any account lives at address.
func Exists(ctx context.Context, txn storage.Txn, address domain.PublicKey) (bool, error) {
	_, err := txn.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoadAuthority reads the AssetAuthority at address.
func LoadAuthority(ctx context.Context, txn storage.Txn, address domain.PublicKey) (*domain.AssetAuthority, error) {
	var a domain.AssetAuthority
	if err := load(ctx, txn, address, storage.KindAuthority, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// StoreAuthority writes the AssetAuthority at address.
func StoreAuthority(ctx context.Context, txn storage.Txn, address domain.PublicKey, a *domain.AssetAuthority) error {
	return store(ctx, txn, address, storage.KindAuthority, a)
}

// LoadMembership reads the MembershipRecord at address.
func LoadMembership(ctx context.Context, txn storage.Txn, address domain.PublicKey) (*domain.MembershipRecord, error) {
	var r domain.MembershipRecord
	if err := load(ctx, txn, address, storage.KindMembership, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// StoreMembership writes the MembershipRecord at address.
func StoreMembership(ctx context.Context, txn storage.Txn, address domain.PublicKey, r *domain.MembershipRecord) error {
	return store(ctx, txn, address, storage.KindMembership, r)
}

// LoadMint reads the Mint at address.
func LoadMint(ctx context.Context, txn storage.Txn, address domain.PublicKey) (*domain.Mint, error) {
	var m domain.Mint
	if err := load(ctx, txn, address, storage.KindMint, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// StoreMint writes the Mint at address.
func StoreMint(ctx context.Context, txn storage.Txn, address domain.PublicKey, m *domain.Mint) error {
	return store(ctx, txn, address, storage.KindMint, m)
}

// LoadTokenAccount reads the TokenAccount at address.
func LoadTokenAccount(ctx context.Context, txn storage.Txn, address domain.PublicKey) (*domain.TokenAccount, error) {
	var ta domain.TokenAccount
	if err := load(ctx, txn, address, storage.KindTokenAccount, &ta); err != nil {
		return nil, err
	}
	return &ta, nil
}

// StoreTokenAccount writes the TokenAccount at address.
func StoreTokenAccount(ctx context.Context, txn storage.Txn, address domain.PublicKey, ta *domain.TokenAccount) error {
	return store(ctx, txn, address, storage.KindTokenAccount, ta)
}

// StoreReceipt writes a transaction Receipt at address.
func StoreReceipt(ctx context.Context, txn storage.Txn, address domain.PublicKey, r *domain.Receipt) error {
	return store(ctx, txn, address, storage.KindReceipt, r)
}
