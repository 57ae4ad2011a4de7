// Package client talks to a membership registry node over JSON-RPC (HTTP)
// and WebSocket subscriptions.
package client

import (
	"context"

	"membership-registry/internal/domain"
	"membership-registry/internal/rpc"
	"membership-registry/internal/runtime"
)

// RPCClient defines the membership node HTTP interface.
type RPCClient interface {
	// SendTransaction submits a signed transaction and waits for it to commit.
	SendTransaction(ctx context.Context, tx *runtime.Transaction) (*rpc.SendTransactionResult, error)

	// GetTransaction retrieves a committed transaction by signature.
	// Returns nil if unknown.
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionInfo, error)

	// GetMembership retrieves a membership record. Returns nil if absent.
	GetMembership(ctx context.Context, address domain.PublicKey) (*rpc.MembershipInfo, error)

	// GetAuthority retrieves the program's asset authority. Returns nil if
	// the program is not initialized.
	GetAuthority(ctx context.Context) (*rpc.AuthorityInfo, error)

	// GetMint retrieves a mint. Returns nil if absent.
	GetMint(ctx context.Context, address domain.PublicKey) (*rpc.MintInfo, error)

	// GetTokenAccount retrieves a token account. Returns nil if absent.
	GetTokenAccount(ctx context.Context, address domain.PublicKey) (*rpc.TokenAccountInfo, error)

	// GetMembershipEvents retrieves the event history of a membership.
	GetMembershipEvents(ctx context.Context, membership domain.PublicKey) ([]*domain.MembershipEvent, error)

	// DeriveAddresses asks the node for the program addresses of creator.
	// mint may be nil.
	DeriveAddresses(ctx context.Context, creator domain.PublicKey, mint *domain.PublicKey) (*rpc.DerivedAddresses, error)

	// GetSlot returns the slot of the most recent commit.
	GetSlot(ctx context.Context) (uint64, error)
}

// WSClient defines the membership event subscription interface.
type WSClient interface {
	// SubscribeMemberships subscribes to committed membership events
	// matching the filter.
	SubscribeMemberships(ctx context.Context, filter rpc.SubscribeFilter) (<-chan Notification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// Notification is one membership event delivered to a subscriber.
type Notification struct {
	Subscription uint64
	Slot         uint64
	Event        *domain.MembershipEvent
}
