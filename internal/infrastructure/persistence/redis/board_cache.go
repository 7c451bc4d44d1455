package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHED REPRESENTATION
// ══════════════════════════════════════════════════════════════════════════════

type cachedPlayer struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Position   string `json:"position,omitempty"`
	Value      int    `json:"value"`
	Included   bool   `json:"included"`
}

type cachedStanding struct {
	Rank         int            `json:"rank"`
	TeamID       string         `json:"team_id"`
	TeamName     string         `json:"team_name"`
	TotalScore   int            `json:"total_score"`
	UserID       string         `json:"user_id"`
	Username     string         `json:"username"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	CalculatedAt time.Time      `json:"calculated_at"`
	Players      []cachedPlayer `json:"players,omitempty"`
}

type cachedStandings struct {
	// Generation is the key's generation when the board was read from the
	// store. Get serves the value only while it is still current.
	Generation uint64 `json:"generation"`

	Type        string           `json:"type"`
	SeasonYear  int              `json:"season_year"`
	Period      int              `json:"period"`
	GeneratedAt time.Time        `json:"generated_at"`
	Entries     []cachedStanding `json:"entries"`
}

func toCached(s *leaderboard.Standings) cachedStandings {
	out := cachedStandings{
		Type:        string(s.Key.Type),
		SeasonYear:  s.Key.SeasonYear,
		Period:      s.Key.Period,
		GeneratedAt: s.GeneratedAt,
		Entries:     make([]cachedStanding, len(s.Entries)),
	}
	for i, e := range s.Entries {
		cs := cachedStanding{
			Rank:         int(e.Rank),
			TeamID:       e.TeamID,
			TeamName:     e.TeamName,
			TotalScore:   e.TotalScore,
			UserID:       e.UserID,
			Username:     e.Username,
			AvatarURL:    e.AvatarURL,
			CalculatedAt: e.CalculatedAt,
		}
		for _, p := range e.Players {
			cs.Players = append(cs.Players, cachedPlayer(p))
		}
		out.Entries[i] = cs
	}
	return out
}

func (c cachedStandings) toDomain() *leaderboard.Standings {
	s := &leaderboard.Standings{
		Key: leaderboard.BoardKey{
			Type:       leaderboard.BoardType(c.Type),
			SeasonYear: c.SeasonYear,
			Period:     c.Period,
		},
		GeneratedAt: c.GeneratedAt,
		Entries:     make([]leaderboard.Standing, len(c.Entries)),
	}
	for i, e := range c.Entries {
		st := leaderboard.Standing{
			Rank:         leaderboard.Rank(e.Rank),
			TeamID:       e.TeamID,
			TeamName:     e.TeamName,
			TotalScore:   e.TotalScore,
			UserID:       e.UserID,
			Username:     e.Username,
			AvatarURL:    e.AvatarURL,
			CalculatedAt: e.CalculatedAt,
		}
		for _, p := range e.Players {
			st.Players = append(st.Players, leaderboard.PlayerScore(p))
		}
		s.Entries[i] = st
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// BOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Observer receives cache notifications. *metrics.Manager implements it.
type Observer interface {
	CacheHit(boardKey string)
	CacheMiss(boardKey string)
	CacheInvalidateFailed(boardKey, step string)
}

// BoardCache implements leaderboard.Cache on Redis. Redis failures are logged
// and degrade to a miss; the store stays the source of truth.
//
// Every invalidation scope has a counter under "<prefix>gen:<scope>".
// Invalidate bumps the counter before deleting, and Get only serves a value
// whose recorded generation still matches the counters. A fill that raced
// with a write, or a delete that failed after the bump, is therefore never
// served.
type BoardCache struct {
	cache    *Cache
	prefix   string
	logger   *slog.Logger
	observer Observer
}

// NewBoardCache creates a BoardCache. An empty prefix uses PrefixLeaderboard.
func NewBoardCache(cache *Cache, prefix string, logger *slog.Logger, observer Observer) *BoardCache {
	if prefix == "" {
		prefix = PrefixLeaderboard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardCache{
		cache:    cache,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "redis_board_cache")),
		observer: observer,
	}
}

var _ leaderboard.Cache = (*BoardCache)(nil)

func (b *BoardCache) counter(scope string) string {
	return b.prefix + "gen:" + scope
}

func (b *BoardCache) counters(key string) []string {
	scopes := leaderboard.KeyScopes(key)
	out := make([]string, len(scopes))
	for i, scope := range scopes {
		out[i] = b.counter(scope)
	}
	return out
}

// Get returns cached standings; TTL expiry is enforced by Redis.
func (b *BoardCache) Get(ctx context.Context, key string) (*leaderboard.Standings, bool) {
	var cached cachedStandings
	gen, err := b.cache.GetCounted(ctx, b.prefix+key, b.counters(key), &cached)
	switch {
	case errors.Is(err, ErrCacheMiss):
		b.miss(key)
		return nil, false
	case err != nil:
		b.logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
		b.miss(key)
		return nil, false
	case gen != cached.Generation:
		b.miss(key)
		return nil, false
	}
	b.hit(key)
	return cached.toDomain(), true
}

// Generation sums the counters of every scope covering key. On a Redis error
// it returns a value no counter sum can equal, so the following Set is
// rejected by Get.
func (b *BoardCache) Generation(ctx context.Context, key string) uint64 {
	gen, err := b.cache.Counters(ctx, b.counters(key)...)
	if err != nil {
		b.logger.WarnContext(ctx, "cache generation read failed", slog.String("key", key), slog.Any("error", err))
		return unknownGeneration
	}
	return gen
}

// unknownGeneration marks a fill whose generation could not be read.
const unknownGeneration = ^uint64(0)

// Set stores standings for ttl, tagged with gen.
func (b *BoardCache) Set(ctx context.Context, key string, value *leaderboard.Standings, ttl time.Duration, gen uint64) {
	if value == nil || ttl <= 0 || gen == unknownGeneration {
		return
	}
	cached := toCached(value)
	cached.Generation = gen
	if err := b.cache.Set(ctx, b.prefix+key, cached, ttl); err != nil {
		b.logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Invalidate bumps the scope's generation, then deletes the key and every key
// nested under it. Failures are logged and reported to the observer.
func (b *BoardCache) Invalidate(ctx context.Context, keyOrPrefix string) {
	if err := b.cache.Incr(ctx, b.counter(keyOrPrefix)); err != nil {
		b.logger.ErrorContext(ctx, "cache generation bump failed", slog.String("key", keyOrPrefix), slog.Any("error", err))
		b.invalidateFailed(keyOrPrefix, "bump")
	}

	full := b.prefix + keyOrPrefix
	err := b.cache.Delete(ctx, full)
	if err == nil {
		err = b.cache.DeleteByPattern(ctx, escapePattern(full)+":*")
	}
	if err != nil {
		b.logger.ErrorContext(ctx, "cache invalidate failed", slog.String("key", keyOrPrefix), slog.Any("error", err))
		b.invalidateFailed(keyOrPrefix, "delete")
	}
}

func (b *BoardCache) invalidateFailed(key, step string) {
	if b.observer != nil {
		b.observer.CacheInvalidateFailed(key, step)
	}
}

func (b *BoardCache) hit(key string) {
	if b.observer != nil {
		b.observer.CacheHit(key)
	}
}

func (b *BoardCache) miss(key string) {
	if b.observer != nil {
		b.observer.CacheMiss(key)
	}
}

// escapePattern quotes the glob metacharacters SCAN MATCH understands.
func escapePattern(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
