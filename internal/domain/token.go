package domain

// AccountState is the lifecycle state of a token account.
type AccountState string

const (
	AccountStateInitialized AccountState = "initialized"
	AccountStateFrozen      AccountState = "frozen"
)

// String returns the string representation of AccountState.
func (s AccountState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s AccountState) IsValid() bool {
	return s == AccountStateInitialized || s == AccountStateFrozen
}

// Mint is a fungible asset class.
type Mint struct {
	MintAuthority   PublicKey  `json:"mint_authority"`
	FreezeAuthority *PublicKey `json:"freeze_authority,omitempty"`
	Supply          uint64     `json:"supply"`
	Decimals        uint8      `json:"decimals"`
}

// TokenAccount is a per-owner balance of one mint.
type TokenAccount struct {
	Mint   PublicKey    `json:"mint"`
	Owner  PublicKey    `json:"owner"`
	Amount uint64       `json:"amount"`
	State  AccountState `json:"state"`
}

// IsFrozen reports whether the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}
