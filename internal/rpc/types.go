package rpc

import "membership-registry/internal/domain"

// Context carries the ledger slot a response was produced at.
type Context struct {
	Slot uint64 `json:"slot"`
}

// SendTransactionResult is returned by sendTransaction.
type SendTransactionResult struct {
	Signature string                    `json:"signature"`
	Slot      uint64                    `json:"slot"`
	Events    []*domain.MembershipEvent `json:"events"`
}

// TransactionInfo is returned by getTransaction.
type TransactionInfo struct {
	Signature string                    `json:"signature"`
	Slot      uint64                    `json:"slot"`
	Payer     domain.PublicKey          `json:"payer"`
	Nonce     uint64                    `json:"nonce"`
	Events    []*domain.MembershipEvent `json:"events"`
}

// MembershipInfo is returned by getMembership.
type MembershipInfo struct {
	Address domain.PublicKey `json:"address"`
	domain.MembershipRecord
}

// AuthorityInfo is returned by getAuthority.
type AuthorityInfo struct {
	Address domain.PublicKey `json:"address"`
	domain.AssetAuthority
}

// MintInfo is returned by getMint.
type MintInfo struct {
	Address domain.PublicKey `json:"address"`
	domain.Mint
}

// TokenAccountInfo is returned by getTokenAccount.
type TokenAccountInfo struct {
	Address domain.PublicKey `json:"address"`
	domain.TokenAccount
}

// DerivedAddresses is returned by deriveAddresses. TokenAccount is set only
// when a mint was supplied.
type DerivedAddresses struct {
	ProgramID      domain.PublicKey  `json:"program_id"`
	Authority      domain.PublicKey  `json:"authority"`
	Membership     domain.PublicKey  `json:"membership"`
	MembershipBump uint8             `json:"membership_bump"`
	TokenAccount   *domain.PublicKey `json:"token_account,omitempty"`
}

// SubscribeFilter narrows a membershipSubscribe subscription. A nil
// Membership matches every event.
type SubscribeFilter struct {
	Membership *domain.PublicKey `json:"membership,omitempty"`
}

// Matches reports whether ev passes the filter.
func (f SubscribeFilter) Matches(ev *domain.MembershipEvent) bool {
	return f.Membership == nil || *f.Membership == ev.Membership
}

// EventNotification is the result payload of a membershipNotification.
type EventNotification struct {
	Context Context                 `json:"context"`
	Value   *domain.MembershipEvent `json:"value"`
}
