package idhash

import (
	"crypto/sha256"

	"membership-registry/internal/domain"
)

// receiptDomain separates receipt addresses from every other hashed address.
const receiptDomain = "membership-registry/receipt"

// ComputeReceiptAddress returns the ledger address recording that the
// transaction with the given first signature was processed.
// Formula: SHA256(receiptDomain|signature)
func ComputeReceiptAddress(signature []byte) domain.PublicKey {
	h := sha256.New()
	h.Write([]byte(receiptDomain))
	h.Write([]byte{'|'})
	h.Write(signature)

	var pk domain.PublicKey
	copy(pk[:], h.Sum(nil))
	return pk
}
