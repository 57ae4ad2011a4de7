package domain

// Seeds and amounts fixed by the membership program.
const (
	MembershipSeed = "member"
	AuthoritySeed  = "authority"

	// MembershipUnits is the raw amount minted per registration or claim
	// and burned on recovery.
	MembershipUnits uint64 = 100

	// GovernanceDecimals is the decimals used for newly created governance mints.
	GovernanceDecimals uint8 = 9
)

// DefaultProgramID is the address the membership program is deployed under.
var DefaultProgramID = MustParsePublicKey("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

// MembershipRecord records which principal currently holds a membership.
// Stored at PDA(["member", Creator]).
type MembershipRecord struct {
	Holder  PublicKey `json:"holder"`
	Creator PublicKey `json:"creator"`
	Mint    PublicKey `json:"mint"`
	Bump    uint8     `json:"bump"`
	// Claims counts committed claims. It only grows, so it orders holders
	// even when a principal holds the membership more than once.
	Claims uint64 `json:"claims"`
}

// AssetAuthority is the singleton program-derived signer that controls the
// governance mint. Stored at PDA(["authority"]).
type AssetAuthority struct {
	Bump        uint8     `json:"bump"`
	Initializer PublicKey `json:"initializer"`
}
