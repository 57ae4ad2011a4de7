package runtime

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"membership-registry/internal/codec"
	"membership-registry/internal/domain"
	"membership-registry/internal/membership"
)

// CreateTokenAccountArgs creates the associated token account of Owner for Mint.
type CreateTokenAccountArgs struct {
	_     struct{}         `cbor:",toarray"`
	Payer domain.PublicKey `json:"payer"`
	Owner domain.PublicKey `json:"owner"`
	Mint  domain.PublicKey `json:"mint"`
}

// TransferArgs moves Amount units from Source to Destination.
type TransferArgs struct {
	_           struct{}         `cbor:",toarray"`
	Owner       domain.PublicKey `json:"owner"`
	Source      domain.PublicKey `json:"source"`
	Destination domain.PublicKey `json:"destination"`
	Amount      uint64           `json:"amount"`
}

// Instruction is a tagged union: exactly one field is set.
type Instruction struct {
	Initialize         *membership.InitializeArgs `cbor:"1,keyasint,omitempty" json:"initialize,omitempty"`
	CreateMint         *membership.CreateMintArgs `cbor:"2,keyasint,omitempty" json:"create_mint,omitempty"`
	CreateTokenAccount *CreateTokenAccountArgs    `cbor:"3,keyasint,omitempty" json:"create_token_account,omitempty"`
	CreateMembership   *membership.CreateArgs     `cbor:"4,keyasint,omitempty" json:"create_membership,omitempty"`
	ClaimMembership    *membership.ClaimArgs      `cbor:"5,keyasint,omitempty" json:"claim_membership,omitempty"`
	ThawAccount        *membership.ThawArgs       `cbor:"6,keyasint,omitempty" json:"thaw_account,omitempty"`
	Transfer           *TransferArgs              `cbor:"7,keyasint,omitempty" json:"transfer,omitempty"`
}

// Name returns the instruction name used in logs and metrics.
// Returns "invalid" unless exactly one field is set.
func (in Instruction) Name() string {
	name, n := "invalid", 0
	set := func(ok bool, s string) {
		if ok {
			name = s
			n++
		}
	}
	set(in.Initialize != nil, "initialize")
	set(in.CreateMint != nil, "create_mint")
	set(in.CreateTokenAccount != nil, "create_token_account")
	set(in.CreateMembership != nil, "create_membership")
	set(in.ClaimMembership != nil, "claim_membership")
	set(in.ThawAccount != nil, "thaw_account")
	set(in.Transfer != nil, "transfer")
	if n != 1 {
		return "invalid"
	}
	return name
}

// RequiredSigner returns the principal that must sign the instruction.
func (in Instruction) RequiredSigner() (domain.PublicKey, error) {
	switch {
	case in.Name() == "invalid":
		return domain.ZeroKey, domain.ErrInvalidInstruction
	case in.Initialize != nil:
		return in.Initialize.Payer, nil
	case in.CreateMint != nil:
		return in.CreateMint.Payer, nil
	case in.CreateTokenAccount != nil:
		return in.CreateTokenAccount.Payer, nil
	case in.CreateMembership != nil:
		return in.CreateMembership.Creator, nil
	case in.ClaimMembership != nil:
		return in.ClaimMembership.Claimant, nil
	case in.ThawAccount != nil:
		return in.ThawAccount.Owner, nil
	default:
		return in.Transfer.Owner, nil
	}
}

// Message is the signed part of a transaction.
type Message struct {
	_           struct{}           `cbor:",toarray"`
	Signers     []domain.PublicKey `json:"signers"`
	Nonce       uint64             `json:"nonce"` // distinguishes otherwise identical messages
	Instruction Instruction        `json:"instruction"`
}

// Transaction is a message plus one ed25519 signature per signer, in order.
type Transaction struct {
	_          struct{} `cbor:",toarray"`
	Message    Message  `json:"message"`
	Signatures [][]byte `json:"signatures"`
}

// NewTransaction builds and signs a transaction. The first key is the fee
// payer and its signature becomes the transaction ID.
func NewTransaction(instruction Instruction, nonce uint64, keys ...ed25519.PrivateKey) (*Transaction, error) {
	if len(keys) == 0 {
		return nil, domain.ErrMissingSignature
	}

	msg := Message{Nonce: nonce, Instruction: instruction}
	for _, key := range keys {
		pk, err := domain.PublicKeyFromBytes(key.Public().(ed25519.PublicKey))
		if err != nil {
			return nil, err
		}
		msg.Signers = append(msg.Signers, pk)
	}

	data, err := codec.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	tx := &Transaction{Message: msg}
	for _, key := range keys {
		tx.Signatures = append(tx.Signatures, ed25519.Sign(key, data))
	}
	return tx, nil
}

// Verify checks that every signer produced a valid signature over the
// encoded message.
func (tx *Transaction) Verify() error {
	if len(tx.Message.Signers) == 0 || len(tx.Signatures) != len(tx.Message.Signers) {
		return domain.ErrMissingSignature
	}

	data, err := codec.Marshal(&tx.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInstruction, err)
	}

	for i, signer := range tx.Message.Signers {
		if len(tx.Signatures[i]) != ed25519.SignatureSize ||
			!ed25519.Verify(ed25519.PublicKey(signer.Bytes()), data, tx.Signatures[i]) {
			return domain.ErrInvalidSignature
		}
	}
	return nil
}

// SignedBy reports whether pk is among the message signers.
func (tx *Transaction) SignedBy(pk domain.PublicKey) bool {
	for _, s := range tx.Message.Signers {
		if s == pk {
			return true
		}
	}
	return false
}

// ID returns the base58 encoding of the first signature.
func (tx *Transaction) ID() string {
	if len(tx.Signatures) == 0 {
		return ""
	}
	return base58.Encode(tx.Signatures[0])
}

// Encode serializes the transaction for the wire.
func (tx *Transaction) Encode() ([]byte, error) {
	return codec.Marshal(tx)
}

var errEmptyTransaction = errors.New("empty transaction")

// DecodeTransaction parses a wire-encoded transaction.
func DecodeTransaction(data []byte) (*Transaction, error) {
	if len(data) == 0 {
		return nil, errEmptyTransaction
	}
	var tx Transaction
	if err := codec.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &tx, nil
}
