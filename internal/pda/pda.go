// Package pda derives program addresses: deterministic, off-curve account
// addresses that only the owning program can sign for.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"membership-registry/internal/domain"
)

const (
	// MaxSeeds is the maximum number of seeds, including the bump.
	MaxSeeds = 16
	// MaxSeedLength is the maximum length of a single seed.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrOnCurve is returned when seeds hash to a valid ed25519 point.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when no bump in [0, 255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump")
	// ErrSeeds is returned when seed count or length limits are exceeded.
	ErrSeeds = errors.New("invalid seeds")
)

// CreateProgramAddress derives an address from seeds (the bump, if any,
// already appended as the last seed) and fails if it lands on the curve.
//
// address = sha256(seed_0 || ... || seed_n || programID || "ProgramDerivedAddress")
func CreateProgramAddress(seeds [][]byte, programID domain.PublicKey) (domain.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return domain.ZeroKey, fmt.Errorf("%w: %d seeds", ErrSeeds, len(seeds))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return domain.ZeroKey, fmt.Errorf("%w: seed length %d", ErrSeeds, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr domain.PublicKey
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr[:]) {
		return domain.ZeroKey, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its canonical bump.
func FindProgramAddress(seeds [][]byte, programID domain.PublicKey) (domain.PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return domain.ZeroKey, 0, fmt.Errorf("%w: %d seeds", ErrSeeds, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.ZeroKey, 0, err
		}
	}

	return domain.ZeroKey, 0, ErrNoViableBump
}

// IsOnCurve reports whether b decodes as a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
