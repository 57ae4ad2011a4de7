package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"membership-registry/internal/accounts"
	"membership-registry/internal/domain"
	"membership-registry/internal/idhash"
	"membership-registry/internal/pda"
	"membership-registry/internal/rpc"
	"membership-registry/internal/storage"
)

// sendTransaction params: [base64 CBOR-encoded signed transaction].
func (s *Server) sendTransaction(ctx context.Context, params json.RawMessage) (any, error) {
	var encoded string
	if err := decodeParams(params, 1, &encoded); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "transaction is not base64: %v", err)
	}

	result, err := s.exec.SubmitEncoded(ctx, data)
	if err != nil {
		return nil, err
	}
	return &rpc.SendTransactionResult{
		Signature: result.Signature,
		Slot:      result.Slot,
		Events:    result.Events,
	}, nil
}

// getTransaction params: [signature]. Returns null for unknown signatures.
func (s *Server) getTransaction(ctx context.Context, params json.RawMessage) (any, error) {
	var signature string
	if err := decodeParams(params, 1, &signature); err != nil {
		return nil, err
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) == 0 {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "invalid signature %q", signature)
	}

	receipt, slot, err := s.reader.Receipt(ctx, idhash.ComputeReceiptAddress(sig))
	if err != nil {
		return absent[*rpc.TransactionInfo](err)
	}

	info := &rpc.TransactionInfo{
		Signature: signature,
		Slot:      slot,
		Payer:     receipt.Payer,
		Nonce:     receipt.Nonce,
		Events:    []*domain.MembershipEvent{},
	}
	if s.events != nil {
		events, err := s.events.GetBySignature(ctx, signature)
		if err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		if events != nil {
			info.Events = events
		}
	}
	return info, nil
}

// getMembership params: [membership address].
func (s *Server) getMembership(ctx context.Context, params json.RawMessage) (any, error) {
	var addr domain.PublicKey
	if err := decodeParams(params, 1, &addr); err != nil {
		return nil, err
	}
	record, err := s.reader.Membership(ctx, addr)
	if err != nil {
		return absent[*rpc.MembershipInfo](err)
	}
	return &rpc.MembershipInfo{Address: addr, MembershipRecord: *record}, nil
}

// getAuthority params: [] or [authority address]. Defaults to the program's
// derived authority.
func (s *Server) getAuthority(ctx context.Context, params json.RawMessage) (any, error) {
	addr := s.exec.Program().AuthorityAddress()
	if err := decodeParams(params, 0, &addr); err != nil {
		return nil, err
	}
	authority, err := s.reader.Authority(ctx, addr)
	if err != nil {
		return absent[*rpc.AuthorityInfo](err)
	}
	return &rpc.AuthorityInfo{Address: addr, AssetAuthority: *authority}, nil
}

// getMint params: [mint address].
func (s *Server) getMint(ctx context.Context, params json.RawMessage) (any, error) {
	var addr domain.PublicKey
	if err := decodeParams(params, 1, &addr); err != nil {
		return nil, err
	}
	mint, err := s.reader.Mint(ctx, addr)
	if err != nil {
		return absent[*rpc.MintInfo](err)
	}
	return &rpc.MintInfo{Address: addr, Mint: *mint}, nil
}

// getTokenAccount params: [token account address].
func (s *Server) getTokenAccount(ctx context.Context, params json.RawMessage) (any, error) {
	var addr domain.PublicKey
	if err := decodeParams(params, 1, &addr); err != nil {
		return nil, err
	}
	account, err := s.reader.TokenAccount(ctx, addr)
	if err != nil {
		return absent[*rpc.TokenAccountInfo](err)
	}
	return &rpc.TokenAccountInfo{Address: addr, TokenAccount: *account}, nil
}

// getMembershipEvents params: [membership address].
func (s *Server) getMembershipEvents(ctx context.Context, params json.RawMessage) (any, error) {
	var addr domain.PublicKey
	if err := decodeParams(params, 1, &addr); err != nil {
		return nil, err
	}
	if s.events == nil {
		return nil, errors.New("event store not configured")
	}
	events, err := s.events.GetByMembership(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if events == nil {
		events = []*domain.MembershipEvent{}
	}
	return events, nil
}

// deriveAddresses params: [creator] or [creator, mint].
func (s *Server) deriveAddresses(_ context.Context, params json.RawMessage) (any, error) {
	var creator domain.PublicKey
	var mint *domain.PublicKey
	if err := decodeParams(params, 1, &creator, &mint); err != nil {
		return nil, err
	}

	program := s.exec.Program()
	membership, bump, err := program.MembershipAddress(creator)
	if err != nil {
		return nil, fmt.Errorf("derive membership: %w", err)
	}

	out := &rpc.DerivedAddresses{
		ProgramID:      program.ID(),
		Authority:      program.AuthorityAddress(),
		Membership:     membership,
		MembershipBump: bump,
	}
	if mint != nil {
		ata, err := pda.AssociatedTokenAddress(creator, *mint)
		if err != nil {
			return nil, fmt.Errorf("derive token account: %w", err)
		}
		out.TokenAccount = &ata
	}
	return out, nil
}

func (s *Server) getSlot(ctx context.Context, params json.RawMessage) (any, error) {
	if err := decodeParams(params, 0); err != nil {
		return nil, err
	}
	return s.ledger.CurrentSlot(ctx)
}

// absent turns a missing account into a null result and a wrong-kind
// account into an invalid params error.
func absent[T any](err error) (any, error) {
	var zero T
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return zero, nil
	case errors.Is(err, accounts.ErrKindMismatch):
		return nil, rpc.NewError(rpc.CodeInvalidParams, "%v", err)
	}
	return nil, err
}
