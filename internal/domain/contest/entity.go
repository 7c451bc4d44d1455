package contest

import (
	"sort"
	"time"
)

// RosterSize is the number of players a locked entry carries.
const RosterSize = 8

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentStatus tracks the entry fee of a team.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRejected PaymentStatus = "rejected"
	PaymentRefunded PaymentStatus = "refunded"
)

// IsValid reports whether the status is one of the known values.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentRejected, PaymentRefunded:
		return true
	}
	return false
}

// EntryStatus tracks the roster lifecycle of a team.
type EntryStatus string

const (
	EntryDraft     EntryStatus = "draft"
	EntrySubmitted EntryStatus = "submitted"
	EntryLocked    EntryStatus = "locked"
)

// IsValid reports whether the status is one of the known values.
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryDraft, EntrySubmitted, EntryLocked:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Team is a contest entry owned by a user for one season.
type Team struct {
	ID            string
	UserID        string
	Name          string
	SeasonYear    int
	PaymentStatus PaymentStatus
	EntryStatus   EntryStatus
	CreatedAt     time.Time
	DeletedAt     *time.Time
}

// IsDeleted reports whether the team was soft-deleted.
func (t *Team) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsEligible reports whether the team belongs on full boards:
// paid, locked and not deleted.
func (t *Team) IsEligible() bool {
	return !t.IsDeleted() &&
		t.PaymentStatus == PaymentPaid &&
		t.EntryStatus == EntryLocked
}

// User is the owner of one or more teams.
type User struct {
	ID        string
	Username  string
	AvatarURL string
	DeletedAt *time.Time
}

// IsDeleted reports whether the user was soft-deleted.
func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// RosterSlot is one player reference on a team roster.
type RosterSlot struct {
	TeamID     string
	PlayerID   string
	PlayerName string
	Position   string
	// Order is the 0-based position of the slot on the roster.
	Order int
}

// PlayerIDs returns the distinct player IDs of the given slots, in roster order.
func PlayerIDs(slots []RosterSlot) []string {
	seen := make(map[string]struct{}, len(slots))
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, ok := seen[s.PlayerID]; ok {
			continue
		}
		seen[s.PlayerID] = struct{}{}
		ids = append(ids, s.PlayerID)
	}
	return ids
}

// UnionPlayerIDs returns the distinct player IDs across several rosters,
// sorted so that queries built from them are deterministic.
func UnionPlayerIDs(rosters map[string][]RosterSlot) []string {
	seen := make(map[string]struct{})
	for _, slots := range rosters {
		for _, s := range slots {
			seen[s.PlayerID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortRoster orders slots by their roster position.
func SortRoster(slots []RosterSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Order < slots[j].Order
	})
}
