package membership

import (
	"context"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
	"membership-registry/internal/token"
)

// ThawArgs are the inputs of ThawAccount.
type ThawArgs struct {
	_         struct{}         `cbor:",toarray"`
	Owner      domain.PublicKey `json:"owner"`
	Membership domain.PublicKey `json:"membership"`
	Account    domain.PublicKey `json:"account"`
	Mint       domain.PublicKey `json:"mint"`
	Authority  domain.PublicKey `json:"authority"`
	Sink       domain.PublicKey `json:"sink"`
}

// ThawAccount lets a frozen former holder recover their account: it is
// thawed and exactly MembershipUnits are burned from it. The account then
// carries no membership claim. Membership names the membership the account
// was frozen out of; it must be backed by Mint.
func (p *Program) ThawAccount(ctx context.Context, txn storage.Txn, args ThawArgs) ([]*domain.MembershipEvent, error) {
	signer, err := p.authoritySigner(ctx, txn, args.Authority)
	if err != nil {
		return nil, err
	}

	if _, err := p.loadMembership(ctx, txn, args.Membership, args.Mint); err != nil {
		return nil, err
	}

	ta, err := token.LoadAccount(ctx, txn, args.Account)
	if err != nil {
		return nil, err
	}
	if ta.Mint != args.Mint {
		return nil, domain.ErrAccountMismatch
	}
	if ta.Owner != args.Owner {
		return nil, domain.ErrAuthorityMismatch
	}
	if !ta.IsFrozen() {
		return nil, domain.ErrAccountNotFrozen
	}
	// Checked before any write so a short balance leaves the account frozen.
	if ta.Amount < domain.MembershipUnits {
		return nil, domain.ErrInsufficientBalance
	}

	if args.Sink == args.Account {
		return nil, domain.ErrAccountMismatch
	}
	sink, err := token.LoadAccount(ctx, txn, args.Sink)
	if err != nil {
		return nil, err
	}
	if sink.Mint != args.Mint {
		return nil, domain.ErrAccountMismatch
	}

	if err := token.Thaw(ctx, txn, args.Account, args.Mint, signer); err != nil {
		return nil, err
	}
	if err := token.Burn(ctx, txn, args.Account, args.Mint, args.Owner, domain.MembershipUnits); err != nil {
		return nil, err
	}

	account := args.Account
	return []*domain.MembershipEvent{{
		Type:         domain.EventAccountThawed,
		Membership:   args.Membership,
		Principal:    args.Owner,
		TokenAccount: &account,
		Amount:       domain.MembershipUnits,
	}}, nil
}
