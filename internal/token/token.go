// Package token implements the fungible asset primitives the membership
// program consumes: mint set-up, account set-up, mint, freeze, thaw, burn
// and transfer.
//
// Every primitive runs inside the caller's ledger transaction. Authority
// arguments are principals the caller has already authenticated (a verified
// transaction signer or a program-derived signer).
package token

import (
	"context"
	"errors"
	"math"

	"membership-registry/internal/accounts"
	"membership-registry/internal/domain"
	"membership-registry/internal/pda"
	"membership-registry/internal/storage"
)

// LoadMint reads a mint, mapping storage errors to program errors.
func LoadMint(ctx context.Context, txn storage.Txn, mint domain.PublicKey) (*domain.Mint, error) {
	m, err := accounts.LoadMint(ctx, txn, mint)
	if err != nil {
		return nil, programError(err)
	}
	return m, nil
}

// LoadAccount reads a token account, mapping storage errors to program errors.
func LoadAccount(ctx context.Context, txn storage.Txn, address domain.PublicKey) (*domain.TokenAccount, error) {
	ta, err := accounts.LoadTokenAccount(ctx, txn, address)
	if err != nil {
		return nil, programError(err)
	}
	return ta, nil
}

func programError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrAccountNotFound
	case errors.Is(err, accounts.ErrKindMismatch):
		return domain.ErrAccountMismatch
	}
	return err
}

// loadMintAccount reads a token account and its mint, checking they match.
func loadMintAccount(ctx context.Context, txn storage.Txn, account, mint domain.PublicKey) (*domain.TokenAccount, *domain.Mint, error) {
	ta, err := LoadAccount(ctx, txn, account)
	if err != nil {
		return nil, nil, err
	}
	if ta.Mint != mint {
		return nil, nil, domain.ErrAccountMismatch
	}
	m, err := LoadMint(ctx, txn, mint)
	if err != nil {
		return nil, nil, err
	}
	return ta, m, nil
}

// InitializeMint creates a mint with zero supply.
func InitializeMint(ctx context.Context, txn storage.Txn, mint, mintAuthority domain.PublicKey, freezeAuthority *domain.PublicKey, decimals uint8) error {
	exists, err := accounts.Exists(ctx, txn, mint)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAccountExists
	}

	m := &domain.Mint{
		MintAuthority: mintAuthority,
		Decimals:      decimals,
	}
	if freezeAuthority != nil {
		fa := *freezeAuthority
		m.FreezeAuthority = &fa
	}
	return accounts.StoreMint(ctx, txn, mint, m)
}

// InitializeAccount creates an empty token account at address.
func InitializeAccount(ctx context.Context, txn storage.Txn, address, mint, owner domain.PublicKey) error {
	if _, err := LoadMint(ctx, txn, mint); err != nil {
		return err
	}
	exists, err := accounts.Exists(ctx, txn, address)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAccountExists
	}

	return accounts.StoreTokenAccount(ctx, txn, address, &domain.TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: domain.AccountStateInitialized,
	})
}

// CreateAssociatedAccount creates the associated token account of owner for mint.
func CreateAssociatedAccount(ctx context.Context, txn storage.Txn, owner, mint domain.PublicKey) (domain.PublicKey, error) {
	address, err := pda.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return domain.ZeroKey, err
	}
	if err := InitializeAccount(ctx, txn, address, mint, owner); err != nil {
		return domain.ZeroKey, err
	}
	return address, nil
}

// MintTo issues amount new units into destination. authority must be the
// mint authority.
func MintTo(ctx context.Context, txn storage.Txn, mint, destination, authority domain.PublicKey, amount uint64) error {
	ta, m, err := loadMintAccount(ctx, txn, destination, mint)
	if err != nil {
		return err
	}
	if m.MintAuthority != authority {
		return domain.ErrAuthorityMismatch
	}
	if ta.IsFrozen() {
		return domain.ErrAccountFrozen
	}
	if amount > math.MaxUint64-m.Supply {
		return domain.ErrInvalidInstruction
	}

	m.Supply += amount
	ta.Amount += amount
	if err := accounts.StoreMint(ctx, txn, mint, m); err != nil {
		return err
	}
	return accounts.StoreTokenAccount(ctx, txn, destination, ta)
}

// Freeze freezes account. authority must be the mint's freeze authority.
func Freeze(ctx context.Context, txn storage.Txn, account, mint, authority domain.PublicKey) error {
	ta, m, err := loadMintAccount(ctx, txn, account, mint)
	if err != nil {
		return err
	}
	if m.FreezeAuthority == nil || *m.FreezeAuthority != authority {
		return domain.ErrAuthorityMismatch
	}
	if ta.IsFrozen() {
		return domain.ErrAccountFrozen
	}

	ta.State = domain.AccountStateFrozen
	return accounts.StoreTokenAccount(ctx, txn, account, ta)
}

// Thaw unfreezes account. authority must be the mint's freeze authority.
func Thaw(ctx context.Context, txn storage.Txn, account, mint, authority domain.PublicKey) error {
	ta, m, err := loadMintAccount(ctx, txn, account, mint)
	if err != nil {
		return err
	}
	if m.FreezeAuthority == nil || *m.FreezeAuthority != authority {
		return domain.ErrAuthorityMismatch
	}
	if !ta.IsFrozen() {
		return domain.ErrAccountNotFrozen
	}

	ta.State = domain.AccountStateInitialized
	return accounts.StoreTokenAccount(ctx, txn, account, ta)
}

// Burn destroys amount units from account, reducing mint supply.
// owner must own the account.
func Burn(ctx context.Context, txn storage.Txn, account, mint, owner domain.PublicKey, amount uint64) error {
	ta, m, err := loadMintAccount(ctx, txn, account, mint)
	if err != nil {
		return err
	}
	if ta.Owner != owner {
		return domain.ErrAuthorityMismatch
	}
	if ta.IsFrozen() {
		return domain.ErrAccountFrozen
	}
	if ta.Amount < amount {
		return domain.ErrInsufficientBalance
	}

	ta.Amount -= amount
	m.Supply -= amount
	if err := accounts.StoreTokenAccount(ctx, txn, account, ta); err != nil {
		return err
	}
	return accounts.StoreMint(ctx, txn, mint, m)
}

// Transfer moves amount units between two accounts of the same mint.
// owner must own source.
func Transfer(ctx context.Context, txn storage.Txn, source, destination, owner domain.PublicKey, amount uint64) error {
	if source == destination {
		return domain.ErrAccountMismatch
	}
	src, err := LoadAccount(ctx, txn, source)
	if err != nil {
		return err
	}
	dst, err := LoadAccount(ctx, txn, destination)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return domain.ErrAccountMismatch
	}
	if src.Owner != owner {
		return domain.ErrAuthorityMismatch
	}
	if src.IsFrozen() || dst.IsFrozen() {
		return domain.ErrAccountFrozen
	}
	if src.Amount < amount {
		return domain.ErrInsufficientBalance
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := accounts.StoreTokenAccount(ctx, txn, source, src); err != nil {
		return err
	}
	return accounts.StoreTokenAccount(ctx, txn, destination, dst)
}
