// Package runtime executes signed transactions against the ledger.
//
// Each transaction carries one instruction. The executor verifies
// signatures, runs the instruction inside a single ledger transaction,
// commits it atomically and then publishes the resulting membership events.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"membership-registry/internal/accounts"
	"membership-registry/internal/domain"
	"membership-registry/internal/idhash"
	"membership-registry/internal/membership"
	"membership-registry/internal/observability"
	"membership-registry/internal/storage"
	"membership-registry/internal/token"
)

// EventPublisher receives committed events, e.g. to push them to subscribers.
type EventPublisher interface {
	Publish(events []*domain.MembershipEvent)
}

// Result describes a committed transaction.
type Result struct {
	Signature string                    `json:"signature"`
	Slot      uint64                    `json:"slot"`
	Events    []*domain.MembershipEvent `json:"events"`
}

// ExecutorOptions contains configuration for creating an Executor.
type ExecutorOptions struct {
	Ledger     storage.Ledger
	Program    *membership.Program
	EventStore storage.EventStore // optional
	Publisher  EventPublisher     // optional
	LedgerName string             // metrics label; default "ledger"
	Logger     *log.Logger
	Now        func() time.Time // default time.Now
}

// Executor runs transactions.
type Executor struct {
	ledger     storage.Ledger
	program    *membership.Program
	eventStore storage.EventStore
	publisher  EventPublisher
	ledgerName string
	logger     *log.Logger
	now        func() time.Time
}

// NewExecutor creates a new Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Ledger == nil {
		return nil, errors.New("runtime: ledger is required")
	}
	if opts.Program == nil {
		return nil, errors.New("runtime: program is required")
	}

	ledgerName := opts.LedgerName
	if ledgerName == "" {
		ledgerName = "ledger"
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		ledger:     opts.Ledger,
		program:    opts.Program,
		eventStore: opts.EventStore,
		publisher:  opts.Publisher,
		ledgerName: ledgerName,
		logger:     logger,
		now:        now,
	}, nil
}

// Program returns the membership program the executor dispatches to.
func (e *Executor) Program() *membership.Program {
	return e.program
}

// SubmitEncoded decodes and submits a wire-encoded transaction.
func (e *Executor) SubmitEncoded(ctx context.Context, data []byte) (*Result, error) {
	tx, err := DecodeTransaction(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInstruction, err)
	}
	return e.Submit(ctx, tx)
}

// Submit verifies and executes tx. Program failures are returned as
// *domain.ProgramError and leave the ledger unchanged.
func (e *Executor) Submit(ctx context.Context, tx *Transaction) (*Result, error) {
	start := e.now()
	name := tx.Message.Instruction.Name()

	result, err := e.submit(ctx, tx)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if pe, ok := domain.AsProgramError(err); ok {
			outcome = "rejected"
			observability.RecordProgramError(pe.Name)
		}
	}
	observability.RecordTransaction(name, outcome, e.now().Sub(start).Seconds())

	return result, err
}

func (e *Executor) submit(ctx context.Context, tx *Transaction) (*Result, error) {
	if err := tx.Verify(); err != nil {
		return nil, err
	}

	signer, err := tx.Message.Instruction.RequiredSigner()
	if err != nil {
		return nil, err
	}
	if !tx.SignedBy(signer) {
		return nil, domain.ErrMissingSignature
	}

	signature := tx.ID()

	txn, err := e.ledger.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	events, err := e.execute(ctx, txn, tx)
	if err != nil {
		if rbErr := txn.Rollback(ctx); rbErr != nil {
			e.logger.Printf("rollback %s: %v", signature, rbErr)
		}
		return nil, err
	}

	commitStart := e.now()
	slot, err := txn.Commit(ctx)
	observability.RecordDBQuery(e.ledgerName, "commit", e.now().Sub(commitStart).Seconds(), ignoreConflict(err))
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			observability.RecordCommitConflict()
			return nil, domain.ErrStaleRecord
		}
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	committedAt := e.now()
	observability.RecordCommit(slot, committedAt.Unix())

	for i, ev := range events {
		ev.EventID = idhash.ComputeEventID(signature, i, ev.Type)
		ev.Signature = signature
		ev.Slot = slot
		ev.EventIndex = i
		ev.Timestamp = committedAt.UnixMilli()
		observability.RecordEventEmitted(string(ev.Type))
	}

	e.emit(ctx, events)

	return &Result{Signature: signature, Slot: slot, Events: events}, nil
}

// execute runs the instruction and records the receipt inside txn.
func (e *Executor) execute(ctx context.Context, txn storage.Txn, tx *Transaction) ([]*domain.MembershipEvent, error) {
	receipt := idhash.ComputeReceiptAddress(tx.Signatures[0])
	exists, err := accounts.Exists(ctx, txn, receipt)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateTransaction
	}

	events, err := e.dispatch(ctx, txn, tx.Message.Instruction)
	if err != nil {
		return nil, err
	}

	if err := accounts.StoreReceipt(ctx, txn, receipt, &domain.Receipt{
		Payer: tx.Message.Signers[0],
		Nonce: tx.Message.Nonce,
	}); err != nil {
		return nil, err
	}
	return events, nil
}

func (e *Executor) dispatch(ctx context.Context, txn storage.Txn, in Instruction) ([]*domain.MembershipEvent, error) {
	p := e.program
	switch {
	case in.Initialize != nil:
		return p.Initialize(ctx, txn, *in.Initialize)
	case in.CreateMint != nil:
		return p.CreateGovernanceMint(ctx, txn, *in.CreateMint)
	case in.CreateTokenAccount != nil:
		args := in.CreateTokenAccount
		_, err := token.CreateAssociatedAccount(ctx, txn, args.Owner, args.Mint)
		return nil, err
	case in.CreateMembership != nil:
		return p.CreateMembership(ctx, txn, *in.CreateMembership)
	case in.ClaimMembership != nil:
		return p.ClaimMembership(ctx, txn, *in.ClaimMembership)
	case in.ThawAccount != nil:
		return p.ThawAccount(ctx, txn, *in.ThawAccount)
	case in.Transfer != nil:
		args := in.Transfer
		return nil, token.Transfer(ctx, txn, args.Source, args.Destination, args.Owner, args.Amount)
	}
	return nil, domain.ErrInvalidInstruction
}

// emit hands committed events to the event store and publisher. The ledger
// commit already happened, so failures here are logged, not returned.
func (e *Executor) emit(ctx context.Context, events []*domain.MembershipEvent) {
	if len(events) == 0 {
		return
	}

	if e.eventStore != nil {
		if err := e.eventStore.InsertBulk(ctx, events); err != nil {
			observability.RecordEventStoreError()
			e.logger.Printf("store %d events for %s: %v", len(events), events[0].Signature, err)
		}
	}

	if e.publisher != nil {
		e.publisher.Publish(events)
	}
}

func ignoreConflict(err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return nil
	}
	return err
}
