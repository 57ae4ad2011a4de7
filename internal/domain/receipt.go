package domain

// Receipt marks a processed transaction so it cannot be replayed.
// Stored at a hash of the transaction's first signature.
type Receipt struct {
	Payer PublicKey `json:"payer"`
	Nonce uint64    `json:"nonce"`
}
