package leaderboard

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store persists board entries. The implementation relies on a uniqueness
// constraint over (team, type, season, period).
type Store interface {
	// ReplaceBoard deletes every entry of the board and inserts the new set.
	ReplaceBoard(ctx context.Context, key BoardKey, entries []Entry) error

	// EnsureEnrolled inserts a zero-score entry ranked after the current
	// scoring entries and tied with other zero entries. When the team already has an entry on the board, that entry is
	// returned unchanged and created is false. Safe for concurrent callers.
	EnsureEnrolled(ctx context.Context, teamID string, key BoardKey) (entry Entry, created bool, err error)

	// RemoveEnrollment deletes the team from every board of the season and
	// returns the keys that lost a row. Removing a missing team is a no-op.
	RemoveEnrollment(ctx context.Context, teamID string, seasonYear int) ([]BoardKey, error)

	// ListBoard returns the board ordered by rank.
	ListBoard(ctx context.Context, key BoardKey) ([]Entry, error)

	// ListStandings returns the board joined with team and owner, ordered by
	// rank. Entries of soft-deleted teams are left out.
	ListStandings(ctx context.Context, key BoardKey) ([]StandingRow, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache holds assembled standings by BoardKey.CacheKey. Implementations must
// be safe for concurrent use.
//
// A reader filling the cache after a miss takes Generation first and hands it
// to Set. Any Invalidate covering the key in between makes that Set a no-op,
// so a board read before a write never outlives the write's invalidation.
type Cache interface {
	// Get returns the cached standings, treating expired entries as absent.
	Get(ctx context.Context, key string) (*Standings, bool)

	// Generation returns a token that changes whenever an Invalidate covers
	// key.
	Generation(ctx context.Context, key string) uint64

	// Set stores standings for ttl unless key was invalidated after gen was
	// taken.
	Set(ctx context.Context, key string, value *Standings, ttl time.Duration, gen uint64)

	// Invalidate drops key and every key nested below it, so "monthly:2026"
	// also drops "monthly:2026:4" but "monthly:2026:1" leaves "monthly:2026:10".
	Invalidate(ctx context.Context, keyOrPrefix string)
}
