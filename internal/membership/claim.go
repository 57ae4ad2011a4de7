package membership

import (
	"context"
	"errors"
	"fmt"

	"membership-registry/internal/accounts"
	"membership-registry/internal/domain"
	"membership-registry/internal/pda"
	"membership-registry/internal/storage"
	"membership-registry/internal/token"
)

// ClaimArgs are the inputs of ClaimMembership.
type ClaimArgs struct {
	_               struct{}         `cbor:",toarray"`
	Claimant        domain.PublicKey `json:"claimant"`
	Membership      domain.PublicKey `json:"membership"`
	Mint            domain.PublicKey `json:"mint"`
	Authority       domain.PublicKey `json:"authority"`
	ClaimantAccount domain.PublicKey `json:"claimant_account"`
	HolderAccount   domain.PublicKey `json:"holder_account"`
	Proof           []byte           `json:"proof,omitempty"`
}

// ClaimMembership moves a membership to the claimant: mints the membership
// units to the claimant's account, points the record at the claimant and
// freezes the previous holder's account. Any failure leaves all three
// untouched once the enclosing transaction is rolled back.
func (p *Program) ClaimMembership(ctx context.Context, txn storage.Txn, args ClaimArgs) ([]*domain.MembershipEvent, error) {
	signer, err := p.authoritySigner(ctx, txn, args.Authority)
	if err != nil {
		return nil, err
	}

	record, err := p.loadMembership(ctx, txn, args.Membership, args.Mint)
	if err != nil {
		return nil, err
	}

	claimantATA, err := pda.AssociatedTokenAddress(args.Claimant, args.Mint)
	if err != nil {
		return nil, err
	}
	holderATA, err := pda.AssociatedTokenAddress(record.Holder, args.Mint)
	if err != nil {
		return nil, err
	}
	if args.ClaimantAccount != claimantATA || args.HolderAccount != holderATA {
		return nil, domain.ErrAccountMismatch
	}

	if args.Claimant == record.Holder {
		return nil, domain.ErrAlreadyHolder
	}

	claimantAccount, err := token.LoadAccount(ctx, txn, claimantATA)
	if err != nil {
		return nil, err
	}
	if claimantAccount.IsFrozen() {
		return nil, domain.ErrAlreadyFrozen
	}

	err = p.authorizer.AuthorizeClaim(ctx, ClaimRequest{
		Membership:    args.Membership,
		Claimant:      args.Claimant,
		CurrentHolder: record.Holder,
		Claims:        record.Claims,
		Proof:         args.Proof,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClaimNotAuthorized, err)
	}

	if err := token.MintTo(ctx, txn, args.Mint, claimantATA, signer, domain.MembershipUnits); err != nil {
		return nil, err
	}

	previous := record.Holder
	record.Holder = args.Claimant
	record.Claims++
	if err := accounts.StoreMembership(ctx, txn, args.Membership, record); err != nil {
		return nil, err
	}

	if err := token.Freeze(ctx, txn, holderATA, args.Mint, signer); err != nil {
		return nil, err
	}

	return []*domain.MembershipEvent{{
		Type:           domain.EventMembershipClaimed,
		Membership:     args.Membership,
		Principal:      args.Claimant,
		PreviousHolder: &previous,
		TokenAccount:   &claimantATA,
		Amount:         domain.MembershipUnits,
	}}, nil
}

// loadMembership reads the record at addr and checks that addr is the
// creator's derived membership address and that the record is backed by mint.
func (p *Program) loadMembership(ctx context.Context, txn storage.Txn, addr, mint domain.PublicKey) (*domain.MembershipRecord, error) {
	record, err := accounts.LoadMembership(ctx, txn, addr)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, domain.ErrMembershipNotFound
		case errors.Is(err, accounts.ErrKindMismatch):
			return nil, domain.ErrAccountMismatch
		}
		return nil, err
	}

	expected, _, err := p.MembershipAddress(record.Creator)
	if err != nil {
		return nil, err
	}
	if expected != addr || record.Mint != mint {
		return nil, domain.ErrAccountMismatch
	}
	return record, nil
}
