package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric code of a program error. Codes start at 6000
// so they never collide with runtime-level errors.
type ErrorCode uint32

// ProgramError is a precondition failure that aborts a transaction.
// Values are singletons: compare with errors.Is.
type ProgramError struct {
	Code ErrorCode
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

func newProgramError(code ErrorCode, name, msg string) *ProgramError {
	e := &ProgramError{Code: code, Name: name, Msg: msg}
	programErrors[code] = e
	return e
}

var programErrors = make(map[ErrorCode]*ProgramError)

var (
	ErrAlreadyInitialized    = newProgramError(6000, "AlreadyInitialized", "asset authority already exists")
	ErrDuplicateMembership   = newProgramError(6001, "DuplicateMembership", "membership already exists for creator")
	ErrAccountMismatch       = newProgramError(6002, "AccountMismatch", "supplied account does not match derived address")
	ErrAuthorityMismatch     = newProgramError(6003, "AuthorityMismatch", "signer is not the configured authority")
	ErrMintAuthorityMismatch = newProgramError(6004, "MintAuthorityMismatch", "mint authority is not the asset authority")
	ErrAlreadyFrozen         = newProgramError(6005, "AlreadyFrozen", "claimant token account is frozen")
	ErrAccountFrozen         = newProgramError(6006, "AccountFrozen", "token account is frozen")
	ErrAccountNotFrozen      = newProgramError(6007, "AccountNotFrozen", "token account is not frozen")
	ErrInsufficientBalance   = newProgramError(6008, "InsufficientBalance", "balance below required amount")
	ErrNotInitialized        = newProgramError(6009, "NotInitialized", "asset authority has not been initialized")
	ErrMembershipNotFound    = newProgramError(6010, "MembershipNotFound", "membership record does not exist")
	ErrAccountNotFound       = newProgramError(6011, "AccountNotFound", "account does not exist")
	ErrAlreadyHolder         = newProgramError(6012, "AlreadyHolder", "claimant already holds the membership")
	ErrClaimNotAuthorized    = newProgramError(6013, "ClaimNotAuthorized", "claim authorization rejected")
	ErrMissingSignature      = newProgramError(6014, "MissingSignature", "required signer did not sign")
	ErrInvalidSignature      = newProgramError(6015, "InvalidSignature", "signature verification failed")
	ErrStaleRecord           = newProgramError(6016, "StaleRecord", "account changed since it was read")
	ErrInvalidInstruction    = newProgramError(6017, "InvalidInstruction", "malformed instruction")
	ErrAccountExists         = newProgramError(6018, "AccountExists", "account already exists")
	ErrDuplicateTransaction  = newProgramError(6019, "DuplicateTransaction", "transaction already processed")
	ErrMintInUse             = newProgramError(6020, "MintInUse", "mint already backs a membership")
)

// ProgramErrorByCode returns the registered error for code, or nil.
func ProgramErrorByCode(code ErrorCode) *ProgramError {
	return programErrors[code]
}

// AsProgramError extracts the ProgramError from err's chain.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
