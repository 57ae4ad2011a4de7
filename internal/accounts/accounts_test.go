package accounts

import (
	"context"
	"errors"
	"testing"

	"membership-registry/internal/domain"
	"membership-registry/internal/storage"
	"membership-registry/internal/storage/memory"
)

func TestStoreAndLoad(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	recordAddr := domain.PublicKey{1}
	mintAddr := domain.PublicKey{2}
	freeze := domain.PublicKey{7}

	txn, err := ledger.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	record := &domain.MembershipRecord{Holder: domain.PublicKey{3}, Creator: domain.PublicKey{3}, Mint: mintAddr, Bump: 254}
	if err := StoreMembership(ctx, txn, recordAddr, record); err != nil {
		t.Fatalf("StoreMembership: %v", err)
	}
	mint := &domain.Mint{MintAuthority: domain.PublicKey{5}, FreezeAuthority: &freeze, Decimals: 9}
	if err := StoreMint(ctx, txn, mintAddr, mint); err != nil {
		t.Fatalf("StoreMint: %v", err)
	}
	if _, err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := NewReader(ledger)
	gotRecord, err := reader.Membership(ctx, recordAddr)
	if err != nil {
		t.Fatalf("Membership: %v", err)
	}
	if *gotRecord != *record {
		t.Errorf("record = %+v, want %+v", gotRecord, record)
	}

	gotMint, err := reader.Mint(ctx, mintAddr)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if gotMint.FreezeAuthority == nil || *gotMint.FreezeAuthority != freeze {
		t.Errorf("freeze authority = %v, want %v", gotMint.FreezeAuthority, freeze)
	}
	if gotMint.Decimals != 9 {
		t.Errorf("decimals = %d, want 9", gotMint.Decimals)
	}
}

func TestLoad_KindMismatch(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	addr := domain.PublicKey{1}

	txn, _ := ledger.Begin(ctx)
	if err := StoreMint(ctx, txn, addr, &domain.Mint{}); err != nil {
		t.Fatalf("StoreMint: %v", err)
	}
	if _, err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	txn, _ = ledger.Begin(ctx)
	_, err := LoadTokenAccount(ctx, txn, addr)
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("expected ErrKindMismatch, got %v", err)
	}
}

func TestLoad_NotFound(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()

	txn, _ := ledger.Begin(ctx)
	_, err := LoadAuthority(ctx, txn, domain.PublicKey{1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	exists, err := Exists(ctx, txn, domain.PublicKey{1})
	if err != nil || exists {
		t.Errorf("Exists = %v, %v; want false, nil", exists, err)
	}
}
