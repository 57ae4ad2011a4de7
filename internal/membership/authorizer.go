package membership

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"membership-registry/internal/codec"
	"membership-registry/internal/domain"
)

// ClaimRequest describes a claim awaiting authorization.
type ClaimRequest struct {
	Membership    domain.PublicKey
	Claimant      domain.PublicKey
	CurrentHolder domain.PublicKey
	Claims        uint64 // record's claim count before this claim
	Proof         []byte
}

// ClaimAuthorizer decides whether a claimant is entitled to a membership.
// A non-nil error rejects the claim.
type ClaimAuthorizer interface {
	AuthorizeClaim(ctx context.Context, req ClaimRequest) error
}

// ClaimAuthorizerFunc adapts a function to ClaimAuthorizer.
type ClaimAuthorizerFunc func(ctx context.Context, req ClaimRequest) error

// AuthorizeClaim calls f.
func (f ClaimAuthorizerFunc) AuthorizeClaim(ctx context.Context, req ClaimRequest) error {
	return f(ctx, req)
}

// OpenClaims accepts every claim. Eligibility is left to whoever controls
// submission.
type OpenClaims struct{}

// AuthorizeClaim always succeeds.
func (OpenClaims) AuthorizeClaim(context.Context, ClaimRequest) error {
	return nil
}

// ClaimTicket is the payload an issuer signs to entitle a claimant to a
// membership, e.g. after a marketplace sale of the membership credential.
type ClaimTicket struct {
	_          struct{} `cbor:",toarray"`
	Membership domain.PublicKey
	Claimant   domain.PublicKey
	Holder     domain.PublicKey // holder the ticket was issued against
	Claims     uint64           // record's claim count when issued
}

// ClaimProof is a ClaimTicket with the issuer's ed25519 signature over its
// CBOR encoding.
type ClaimProof struct {
	_         struct{} `cbor:",toarray"`
	Ticket    ClaimTicket
	Signature []byte
}

var (
	errTicketMismatch = errors.New("ticket does not match claim")
	errTicketSig      = errors.New("ticket signature invalid")
)

// TicketAuthorizer accepts claims carrying a ClaimProof signed by Issuer.
// A ticket names the record's claim count, which every committed claim
// increments, so it is accepted at most once even if the membership
// later returns to the same holder.
type TicketAuthorizer struct {
	Issuer domain.PublicKey
}

// AuthorizeClaim decodes and verifies the proof.
func (a TicketAuthorizer) AuthorizeClaim(_ context.Context, req ClaimRequest) error {
	var proof ClaimProof
	if err := codec.Unmarshal(req.Proof, &proof); err != nil {
		return fmt.Errorf("decode claim proof: %w", err)
	}

	t := proof.Ticket
	if t.Membership != req.Membership || t.Claimant != req.Claimant || t.Holder != req.CurrentHolder || t.Claims != req.Claims {
		return errTicketMismatch
	}

	msg, err := codec.Marshal(&t)
	if err != nil {
		return fmt.Errorf("encode claim ticket: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(a.Issuer.Bytes()), msg, proof.Signature) {
		return errTicketSig
	}
	return nil
}

// SignClaimTicket produces an encoded ClaimProof for ticket.
func SignClaimTicket(issuer ed25519.PrivateKey, ticket ClaimTicket) ([]byte, error) {
	msg, err := codec.Marshal(&ticket)
	if err != nil {
		return nil, fmt.Errorf("encode claim ticket: %w", err)
	}
	return codec.Marshal(&ClaimProof{
		Ticket:    ticket,
		Signature: ed25519.Sign(issuer, msg),
	})
}
