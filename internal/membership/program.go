// Package membership implements the token-gated membership program.
//
// A membership record points at its current holder. The holder is the only
// principal with a non-frozen governance balance attributable to the record:
// creating a membership mints the creator's balance, claiming it mints to the
// claimant and freezes the previous holder, and recovery lets a frozen former
// holder thaw their account by burning the membership units.
//
// All handlers run inside the caller's ledger transaction and assume the
// principal named in their arguments has already been authenticated.
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

// Options configures a Program.
type Options struct {
	// ProgramID is the address the program derives its accounts under.
	// Defaults to domain.DefaultProgramID.
	ProgramID domain.PublicKey

	// Authorizer gates ClaimMembership. Defaults to OpenClaims.
	Authorizer ClaimAuthorizer
}

// Program executes membership instructions.
type Program struct {
	id            domain.PublicKey
	authority     domain.PublicKey
	authorityBump uint8
	authorizer    ClaimAuthorizer
}

// NewProgram creates a Program.
func NewProgram(opts Options) (*Program, error) {
	if opts.ProgramID.IsZero() {
		opts.ProgramID = domain.DefaultProgramID
	}
	if opts.Authorizer == nil {
		opts.Authorizer = OpenClaims{}
	}

	authority, bump, err := pda.AuthorityAddress(opts.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("derive authority address: %w", err)
	}

	return &Program{
		id:            opts.ProgramID,
		authority:     authority,
		authorityBump: bump,
		authorizer:    opts.Authorizer,
	}, nil
}

// ID returns the program address.
func (p *Program) ID() domain.PublicKey {
	return p.id
}

// AuthorityAddress returns the derived Asset Authority address.
func (p *Program) AuthorityAddress() domain.PublicKey {
	return p.authority
}

// MembershipAddress returns the derived record address for creator.
func (p *Program) MembershipAddress(creator domain.PublicKey) (domain.PublicKey, uint8, error) {
	return pda.MembershipAddress(p.id, creator)
}

// authoritySigner validates the supplied authority address, loads the
// singleton and re-derives its signing capability from the stored bump.
func (p *Program) authoritySigner(ctx context.Context, txn storage.Txn, supplied domain.PublicKey) (domain.PublicKey, error) {
	if supplied != p.authority {
		return domain.ZeroKey, domain.ErrAccountMismatch
	}

	auth, err := accounts.LoadAuthority(ctx, txn, p.authority)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return domain.ZeroKey, domain.ErrNotInitialized
		case errors.Is(err, accounts.ErrKindMismatch):
			return domain.ZeroKey, domain.ErrAccountMismatch
		}
		return domain.ZeroKey, err
	}

	signer, err := pda.AuthoritySigner(p.id, auth.Bump)
	if err != nil || signer != p.authority {
		return domain.ZeroKey, domain.ErrAccountMismatch
	}
	return signer, nil
}

// InitializeArgs are the inputs of Initialize.
type InitializeArgs struct {
	_         struct{}         `cbor:",toarray"`
	Payer     domain.PublicKey `json:"payer"`
	Authority domain.PublicKey `json:"authority"`
}

// Initialize creates the singleton Asset Authority.
func (p *Program) Initialize(ctx context.Context, txn storage.Txn, args InitializeArgs) ([]*domain.MembershipEvent, error) {
	if args.Authority != p.authority {
		return nil, domain.ErrAccountMismatch
	}

	exists, err := accounts.Exists(ctx, txn, p.authority)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrAlreadyInitialized
	}

	auth := &domain.AssetAuthority{Bump: p.authorityBump, Initializer: args.Payer}
	if err := accounts.StoreAuthority(ctx, txn, p.authority, auth); err != nil {
		return nil, err
	}

	return []*domain.MembershipEvent{{
		Type:      domain.EventAuthorityInitialized,
		Principal: args.Payer,
	}}, nil
}

// CreateMintArgs are the inputs of CreateGovernanceMint.
type CreateMintArgs struct {
	_         struct{}         `cbor:",toarray"`
	Payer     domain.PublicKey `json:"payer"`
	Mint      domain.PublicKey `json:"mint"`
	Authority domain.PublicKey `json:"authority"`
	Decimals  uint8            `json:"decimals"`
}

// CreateGovernanceMint creates a mint whose mint and freeze authority are
// both the Asset Authority.
func (p *Program) CreateGovernanceMint(ctx context.Context, txn storage.Txn, args CreateMintArgs) ([]*domain.MembershipEvent, error) {
	signer, err := p.authoritySigner(ctx, txn, args.Authority)
	if err != nil {
		return nil, err
	}
	if err := token.InitializeMint(ctx, txn, args.Mint, signer, &signer, args.Decimals); err != nil {
		return nil, err
	}
	return nil, nil
}

// CreateArgs are the inputs of CreateMembership.
type CreateArgs struct {
	_            struct{}         `cbor:",toarray"`
	Creator      domain.PublicKey `json:"creator"`
	Membership   domain.PublicKey `json:"membership"`
	TokenAccount domain.PublicKey `json:"token_account"`
	Mint         domain.PublicKey `json:"mint"`
	Authority    domain.PublicKey `json:"authority"`
}

// CreateMembership registers a membership held by its creator and mints the
// membership units into the creator's associated account.
func (p *Program) CreateMembership(ctx context.Context, txn storage.Txn, args CreateArgs) ([]*domain.MembershipEvent, error) {
	address, bump, err := p.MembershipAddress(args.Creator)
	if err != nil {
		return nil, err
	}
	if args.Membership != address {
		return nil, domain.ErrAccountMismatch
	}

	signer, err := p.authoritySigner(ctx, txn, args.Authority)
	if err != nil {
		return nil, err
	}

	exists, err := accounts.Exists(ctx, txn, address)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateMembership
	}

	ata, err := pda.AssociatedTokenAddress(args.Creator, args.Mint)
	if err != nil {
		return nil, err
	}
	if args.TokenAccount != ata {
		return nil, domain.ErrAccountMismatch
	}
	ta, err := token.LoadAccount(ctx, txn, ata)
	if err != nil {
		return nil, err
	}
	if ta.Owner != args.Creator || ta.Mint != args.Mint {
		return nil, domain.ErrAccountMismatch
	}
	if ta.IsFrozen() {
		return nil, domain.ErrAlreadyFrozen
	}

	mint, err := token.LoadMint(ctx, txn, args.Mint)
	if err != nil {
		return nil, err
	}
	if mint.MintAuthority != signer || mint.FreezeAuthority == nil || *mint.FreezeAuthority != signer {
		return nil, domain.ErrMintAuthorityMismatch
	}
	// Each membership owns its asset class. Only create and claim mint
	// under the authority, so a non-zero supply means another record
	// already uses this mint.
	if mint.Supply != 0 {
		return nil, domain.ErrMintInUse
	}

	record := &domain.MembershipRecord{
		Holder:  args.Creator,
		Creator: args.Creator,
		Mint:    args.Mint,
		Bump:    bump,
	}
	if err := accounts.StoreMembership(ctx, txn, address, record); err != nil {
		return nil, err
	}
	if err := token.MintTo(ctx, txn, args.Mint, ata, signer, domain.MembershipUnits); err != nil {
		return nil, err
	}

	return []*domain.MembershipEvent{{
		Type:         domain.EventMembershipCreated,
		Membership:   address,
		Principal:    args.Creator,
		TokenAccount: &ata,
		Amount:       domain.MembershipUnits,
	}}, nil
}
