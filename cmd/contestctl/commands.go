package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hrderby/contest-hub/internal/application/command"
	"github.com/hrderby/contest-hub/internal/domain/leaderboard"
	"github.com/hrderby/contest-hub/internal/infrastructure/persistence/postgres"
)

// migrator is implemented by *postgres.Migrator.
type migrator interface {
	Migrate(ctx context.Context) (int, error)
	Rollback(ctx context.Context) (int, error)
	Status(ctx context.Context) ([]postgres.Migration, error)
}

// engine is implemented by *application.Engine.
type engine interface {
	GetBoard(ctx context.Context, key leaderboard.BoardKey) (*leaderboard.Standings, error)
	CalculateBoard(ctx context.Context, key leaderboard.BoardKey) (*command.CalculateBoardResult, error)
	CalculateSeason(ctx context.Context, seasonYear int) (*command.CalculateSeasonResult, error)
	EnrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.EnrollTeamResult, error)
	UnenrollTeam(ctx context.Context, teamID string, seasonYear int) (*command.UnenrollTeamResult, error)
}

// runtime holds the opened dependencies of one invocation.
type runtime struct {
	// Season is the configured current season, used when --season is omitted.
	Season   int
	Migrator migrator
	Engine   engine
	Close    func()
}

type opener func(ctx context.Context) (*runtime, error)

func newApp(out io.Writer, open opener) *cli.App {
	withRuntime := func(fn func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			rt, err := open(c.Context)
			if err != nil {
				return err
			}
			defer rt.Close()
			return fn(c, rt)
		}
	}

	seasonFlag := func() cli.Flag {
		return &cli.IntFlag{Name: "season", Aliases: []string{"s"}, Usage: "season year (default: configured season)"}
	}
	boardFlags := func(extra ...cli.Flag) []cli.Flag {
		return append([]cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: string(leaderboard.BoardOverall), Usage: "overall or monthly"},
			seasonFlag(),
			&cli.IntFlag{Name: "period", Aliases: []string{"p"}, Usage: "month for monthly boards"},
		}, extra...)
	}
	teamFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "team", Required: true, Usage: "team ID"},
			seasonFlag(),
		}
	}

	return &cli.App{
		Name:      "contestctl",
		Usage:     "administer the home run contest leaderboards",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "database migrations",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							n, err := rt.Migrator.Migrate(c.Context)
							if err != nil {
								return err
							}
							fmt.Fprintf(out, "applied %d migration(s)\n", n)
							return nil
						}),
					},
					{
						Name:  "down",
						Usage: "roll back the last migration",
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							v, err := rt.Migrator.Rollback(c.Context)
							if err != nil {
								return err
							}
							if v == 0 {
								fmt.Fprintln(out, "nothing to roll back")
								return nil
							}
							fmt.Fprintf(out, "rolled back migration %d\n", v)
							return nil
						}),
					},
					{
						Name:  "status",
						Usage: "list migrations",
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							migs, err := rt.Migrator.Status(c.Context)
							if err != nil {
								return err
							}
							tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
							fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
							for _, m := range migs {
								applied := "pending"
								if m.IsApplied {
									applied = m.AppliedAt.UTC().Format("2006-01-02 15:04:05")
								}
								fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
							}
							return tw.Flush()
						}),
					},
				},
			},
			{
				Name:  "board",
				Usage: "leaderboards",
				Subcommands: []*cli.Command{
					{
						Name:  "calculate",
						Usage: "recalculate one board",
						Flags: boardFlags(),
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							key, err := boardKey(c, rt)
							if err != nil {
								return err
							}
							res, err := rt.Engine.CalculateBoard(c.Context, key)
							if err != nil {
								return err
							}
							printCalculation(out, res)
							return nil
						}),
					},
					{
						Name:  "show",
						Usage: "print a board",
						Flags: boardFlags(&cli.BoolFlag{Name: "json", Usage: "print JSON"}),
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							key, err := boardKey(c, rt)
							if err != nil {
								return err
							}
							board, err := rt.Engine.GetBoard(c.Context, key)
							if err != nil {
								return err
							}
							if c.Bool("json") {
								enc := json.NewEncoder(out)
								enc.SetIndent("", "  ")
								return enc.Encode(board)
							}
							return printBoard(out, board)
						}),
					},
				},
			},
			{
				Name:  "season",
				Usage: "whole seasons",
				Subcommands: []*cli.Command{
					{
						Name:  "calculate",
						Usage: "recalculate the overall board and every started monthly board",
						Flags: []cli.Flag{seasonFlag()},
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							res, err := rt.Engine.CalculateSeason(c.Context, season(c, rt))
							if err != nil {
								return err
							}
							for _, b := range res.Boards {
								printCalculation(out, b)
							}
							fmt.Fprintf(out, "season %d: %d board(s), %d entries in %s\n",
								res.SeasonYear, len(res.Boards), res.Entries(), res.Duration.Round(time.Millisecond))
							return nil
						}),
					},
				},
			},
			{
				Name:  "team",
				Usage: "team enrollment",
				Subcommands: []*cli.Command{
					{
						Name:  "enroll",
						Usage: "add a paid team to its overall board",
						Flags: teamFlags(),
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							res, err := rt.Engine.EnrollTeam(c.Context, c.String("team"), c.Int("season"))
							if err != nil {
								return err
							}
							state := "already enrolled"
							if res.Created {
								state = "enrolled"
							}
							fmt.Fprintf(out, "%s %s on %s at rank %d\n", res.Entry.TeamID, state, res.Entry.Key, res.Entry.Rank)
							return nil
						}),
					},
					{
						Name:  "unenroll",
						Usage: "remove a team from every board of a season",
						Flags: teamFlags(),
						Action: withRuntime(func(c *cli.Context, rt *runtime) error {
							res, err := rt.Engine.UnenrollTeam(c.Context, c.String("team"), season(c, rt))
							if err != nil {
								return err
							}
							if len(res.Removed) == 0 {
								fmt.Fprintln(out, "team was not on any board")
								return nil
							}
							keys := make([]string, len(res.Removed))
							for i, k := range res.Removed {
								keys[i] = k.String()
							}
							fmt.Fprintf(out, "removed from %s\n", strings.Join(keys, ", "))
							return nil
						}),
					},
				},
			},
		},
	}
}

func season(c *cli.Context, rt *runtime) int {
	if c.IsSet("season") {
		return c.Int("season")
	}
	return rt.Season
}

func boardKey(c *cli.Context, rt *runtime) (leaderboard.BoardKey, error) {
	t, err := leaderboard.ParseBoardType(c.String("type"))
	if err != nil {
		return leaderboard.BoardKey{}, err
	}
	return leaderboard.NewBoardKey(t, season(c, rt), c.Int("period"))
}

func printCalculation(out io.Writer, res *command.CalculateBoardResult) {
	fmt.Fprintf(out, "%s: %d entries, %d skipped in %s", res.Key, len(res.Entries), len(res.Skipped), res.Duration.Round(time.Millisecond))
	if !res.StatsThrough.IsZero() {
		fmt.Fprintf(out, " (stats through %s)", res.StatsThrough.Format("2006-01-02"))
	}
	fmt.Fprintln(out)
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.TeamID, s.Reason)
	}
}

func printBoard(out io.Writer, board *leaderboard.Standings) error {
	if board.Len() == 0 {
		fmt.Fprintf(out, "%s is empty\n", board.Key)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEAM\tOWNER\tHR")
	for _, e := range board.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.Rank, e.TeamName, e.Username, e.TotalScore)
	}
	return tw.Flush()
}
