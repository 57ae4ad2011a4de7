package accounts

import (
	"context"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
)

// Reader decodes committed accounts straight from a ledger, outside any
// transaction. Used by query endpoints.
type Reader struct {
	ledger storage.Ledger
}

// NewReader creates a Reader over ledger.
func NewReader(ledger storage.Ledger) *Reader {
	return &Reader{ledger: ledger}
}

func (r *Reader) get(ctx context.Context, address domain.PublicKey, kind storage.AccountKind, v any) (*storage.Account, error) {
	acc, err := r.ledger.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	if err := decode(acc, kind, v); err != nil {
		return nil, err
	}
	return acc, nil
}

// Authority returns the committed AssetAuthority at address.
func (r *Reader) Authority(ctx context.Context, address domain.PublicKey) (*domain.AssetAuthority, error) {
	var a domain.AssetAuthority
	if _, err := r.get(ctx, address, storage.KindAuthority, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Membership returns the committed MembershipRecord at address.
func (r *Reader) Membership(ctx context.Context, address domain.PublicKey) (*domain.MembershipRecord, error) {
	var m domain.MembershipRecord
	if _, err := r.get(ctx, address, storage.KindMembership, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Mint returns the committed Mint at address.
func (r *Reader) Mint(ctx context.Context, address domain.PublicKey) (*domain.Mint, error) {
	var m domain.Mint
	if _, err := r.get(ctx, address, storage.KindMint, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// TokenAccount returns the committed TokenAccount at address.
func (r *Reader) TokenAccount(ctx context.Context, address domain.PublicKey) (*domain.TokenAccount, error) {
	var ta domain.TokenAccount
	if _, err := r.get(ctx, address, storage.KindTokenAccount, &ta); err != nil {
		return nil, err
	}
	return &ta, nil
}

// Receipt returns the committed Receipt at address and the slot it was
// written in.
func (r *Reader) Receipt(ctx context.Context, address domain.PublicKey) (*domain.Receipt, uint64, error) {
	var rc domain.Receipt
	acc, err := r.get(ctx, address, storage.KindReceipt, &rc)
	if err != nil {
		return nil, 0, err
	}
	return &rc, acc.Slot, nil
}
