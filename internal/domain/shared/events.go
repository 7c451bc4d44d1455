package shared

// EventType names a domain event. The value doubles as the message topic.
type EventType string

// Domain event types.
const (
	// A team's payment cleared: the team joins its season's overall board.
	EventTeamPaymentApproved EventType = "contest.team.payment_approved"

	// A payment was refunded or rejected: the team leaves every board.
	EventTeamPaymentReversed EventType = "contest.team.payment_reversed"
)

// AllEventTypes lists every event the contest publishes.
func AllEventTypes() []EventType {
	return []EventType{EventTeamPaymentApproved, EventTeamPaymentReversed}
}

// String returns the topic name.
func (t EventType) String() string {
	return string(t)
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}
