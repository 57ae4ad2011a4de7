package domain

// EventType identifies a membership state transition.
type EventType string

const (
	EventAuthorityInitialized EventType = "AUTHORITY_INITIALIZED"
	EventMembershipCreated    EventType = "MEMBERSHIP_CREATED"
	EventMembershipClaimed    EventType = "MEMBERSHIP_CLAIMED"
	EventAccountThawed        EventType = "ACCOUNT_THAWED"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is a valid value.
func (t EventType) IsValid() bool {
	switch t {
	case EventAuthorityInitialized, EventMembershipCreated, EventMembershipClaimed, EventAccountThawed:
		return true
	}
	return false
}

// MembershipEvent is one committed membership transition.
// Corresponds to membership_events table in ClickHouse.
type MembershipEvent struct {
	EventID        string     `json:"event_id"`  // deterministic hash
	Signature      string     `json:"signature"` // transaction signature (base58)
	Slot           uint64     `json:"slot"`
	EventIndex     int        `json:"event_index"`
	Type           EventType  `json:"type"`
	Membership     PublicKey  `json:"membership"` // zero for AUTHORITY_INITIALIZED
	Principal      PublicKey  `json:"principal"`  // signer that drove the transition
	PreviousHolder *PublicKey `json:"previous_holder,omitempty"`
	TokenAccount   *PublicKey `json:"token_account,omitempty"`
	Amount         uint64     `json:"amount"`
	Timestamp      int64      `json:"timestamp"` // Unix ms
}
