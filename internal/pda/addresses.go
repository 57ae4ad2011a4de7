package pda

import (
	"membership-registry/internal/domain"
)

// Well-known program IDs that participate in address derivation.
var (
	TokenProgramID           = domain.MustParsePublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = domain.MustParsePublicKey("ATokenGPvbdGVxr1b2hWRGaK2Tvi8XtsDCMEaBnN8dzE")
)

// MembershipAddress derives the membership record address for creator.
// Seeds: ["member", creator]
func MembershipAddress(programID, creator domain.PublicKey) (domain.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte(domain.MembershipSeed),
		creator[:],
	}, programID)
}

// AuthorityAddress derives the singleton asset authority address.
// Seeds: ["authority"]
func AuthorityAddress(programID domain.PublicKey) (domain.PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{
		[]byte(domain.AuthoritySeed),
	}, programID)
}

// AuthoritySigner re-derives the authority address from its stored bump.
func AuthoritySigner(programID domain.PublicKey, bump uint8) (domain.PublicKey, error) {
	return CreateProgramAddress([][]byte{
		[]byte(domain.AuthoritySeed),
		{bump},
	}, programID)
}

// AssociatedTokenAddress returns the canonical token account of owner for mint.
// Seeds: [owner, token_program_id, mint] under the associated token program.
func AssociatedTokenAddress(owner, mint domain.PublicKey) (domain.PublicKey, error) {
	addr, _, err := FindProgramAddress([][]byte{
		owner[:],
		TokenProgramID[:],
		mint[:],
	}, AssociatedTokenProgramID)
	return addr, err
}
