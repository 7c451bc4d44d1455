package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// migrationLockID serializes migrators across processes; the server and
// contestctl may both migrate at startup.
const migrationLockID int64 = 0x636f6e74657374

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string

	// Filled by Status.
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}) (map[int]time.Time, error) {
	rows, err := q.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	applied := make(map[int]time.Time)
	var (
		version   int
		appliedAt time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&version, &appliedAt}, func() error {
		applied[version] = appliedAt
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	return applied, nil
}

// lockedTx runs fn in a transaction holding the migration lock, with the
// applied versions as seen under that lock.
func (m *Migrator) lockedTx(ctx context.Context, fn func(tx pgx.Tx, applied map[int]time.Time) error) error {
	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("failed to take migration lock: %w", err)
		}
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		return fn(tx, applied)
	})
}

// Migrate applies every pending migration in version order, each in its own
// transaction, and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		err := m.lockedTx(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
			if _, done := applied[mig.Version]; done {
				return nil
			}
			if mig.UpSQL == "" {
				return errors.New("missing up SQL")
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name,
			); err != nil {
				return err
			}
			ran++
			return nil
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return ran, nil
}

// Rollback reverts the newest applied migration and returns its version, or
// 0 when nothing is applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	var reverted int
	err := m.lockedTx(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		if len(applied) == 0 {
			return nil
		}
		last := slices.Max(mapKeys(applied))

		idx := slices.IndexFunc(m.migrations, func(mig Migration) bool { return mig.Version == last })
		if idx < 0 || m.migrations[idx].DownSQL == "" {
			return fmt.Errorf("missing down SQL for version %d", last)
		}
		if _, err := tx.Exec(ctx, m.migrations[idx].DownSQL); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last); err != nil {
			return err
		}
		reverted = last
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rollback: %v", ErrMigrationFailed, err)
	}
	return reverted, nil
}

// Status lists every embedded migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, m.conn)
	if err != nil {
		return nil, err
	}

	out := slices.Clone(m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

func mapKeys(m map[int]time.Time) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_contest",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_player_stats",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_leaderboard_entries",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CONTEST
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    username VARCHAR(100) NOT NULL UNIQUE,
    avatar_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMP WITH TIME ZONE
);

CREATE TABLE IF NOT EXISTS teams (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id),
    name VARCHAR(100) NOT NULL,
    season_year INTEGER NOT NULL,
    payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
    entry_status VARCHAR(20) NOT NULL DEFAULT 'draft',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_payment_status CHECK (payment_status IN ('pending', 'paid', 'rejected', 'refunded')),
    CONSTRAINT valid_entry_status CHECK (entry_status IN ('draft', 'submitted', 'locked'))
);

CREATE INDEX IF NOT EXISTS idx_teams_season ON teams(season_year) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_teams_user ON teams(user_id);

CREATE TABLE IF NOT EXISTS players (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    mlb_id VARCHAR(20) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL,
    team_abbr VARCHAR(5) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS team_players (
    team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    player_id UUID NOT NULL REFERENCES players(id),
    position VARCHAR(10) NOT NULL,
    slot_order SMALLINT NOT NULL,

    PRIMARY KEY (team_id, player_id),
    UNIQUE (team_id, slot_order)
);

CREATE INDEX IF NOT EXISTS idx_team_players_player ON team_players(player_id);
`

const migration001Down = `
DROP TABLE IF EXISTS team_players;
DROP TABLE IF EXISTS players;
DROP TABLE IF EXISTS teams;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PLAYER STATS
// ══════════════════════════════════════════════════════════════════════════════

// player_stats is written by the stats importer; one row per player per day.
const migration002Up = `
CREATE TABLE IF NOT EXISTS player_stats (
    id BIGSERIAL PRIMARY KEY,
    player_id UUID NOT NULL REFERENCES players(id),
    season_year INTEGER NOT NULL,
    date DATE NOT NULL,
    hrs_daily INTEGER NOT NULL DEFAULT 0,
    hrs_total INTEGER NOT NULL DEFAULT 0,
    hrs_regular_season INTEGER NOT NULL DEFAULT 0,
    hrs_postseason INTEGER NOT NULL DEFAULT 0,
    last_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE (player_id, season_year, date)
);

CREATE INDEX IF NOT EXISTS idx_player_stats_season_date ON player_stats(season_year, date DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS player_stats;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: LEADERBOARD ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// period is 0 for season-long boards so the unique constraint covers them too.
const migration003Up = `
CREATE TABLE IF NOT EXISTS leaderboard_entries (
    id UUID PRIMARY KEY,
    team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
    leaderboard_type VARCHAR(20) NOT NULL,
    season_year INTEGER NOT NULL,
    period SMALLINT NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL,
    total_score INTEGER NOT NULL DEFAULT 0,
    calculated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_leaderboard_entry UNIQUE (team_id, leaderboard_type, season_year, period),
    CONSTRAINT valid_leaderboard_type CHECK (leaderboard_type IN ('overall', 'monthly')),
    CONSTRAINT valid_rank CHECK (rank >= 1)
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_board ON leaderboard_entries(leaderboard_type, season_year, period, rank);
CREATE INDEX IF NOT EXISTS idx_leaderboard_team_season ON leaderboard_entries(team_id, season_year);
`

const migration003Down = `
DROP TABLE IF EXISTS leaderboard_entries;
`
