package contest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hrderby/contest-hub/internal/domain/shared"
)

// TeamPaymentEvent is the payload of the team lifecycle events.
type TeamPaymentEvent struct {
	TeamID     string    `json:"team_id"`
	SeasonYear int       `json:"season_year"`
	OccurredAt time.Time `json:"occurred_at"`

	// Reason is free text, e.g. "refund" or "chargeback".
	Reason string `json:"reason,omitempty"`
}

// Validate checks the payload fields.
func (e TeamPaymentEvent) Validate() error {
	if _, err := uuid.Parse(e.TeamID); err != nil {
		return shared.WrapError("contest", "TeamPaymentEvent", shared.ErrInvalidID, "team_id must be a UUID", err)
	}
	if e.SeasonYear < 2000 || e.SeasonYear > 2100 {
		return shared.NewDomainError("contest", "TeamPaymentEvent", shared.ErrValueOutOfRange,
			fmt.Sprintf("season_year %d out of range", e.SeasonYear))
	}
	return nil
}
