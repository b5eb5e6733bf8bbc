package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/db"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

// --------------------------------------------------------------------------
// tournament command
// --------------------------------------------------------------------------

func tournamentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Create, list and end tournaments",
	}
	cmd.AddCommand(tournamentCreateCmd())
	cmd.AddCommand(tournamentListCmd())
	cmd.AddCommand(tournamentEndCmd())
	return cmd
}

func tournamentCreateCmd() *cobra.Command {
	var (
		spec       tournament.Spec
		sport      string
		categories []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tournament with its roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Type = model.SportType(strings.ToLower(sport))
			for _, c := range categories {
				cat, err := parseCategory(c)
				if err != nil {
					return err
				}
				spec.Categories = append(spec.Categories, cat)
			}
			return runStore("", func(ctx context.Context, store *tournament.Store, pool *db.Pool) error {
				t, err := store.CreateTournament(ctx, spec)
				if err != nil {
					return err
				}
				v := store.View()
				logger.Info("Tournament created",
					"id", t.ID, "name", t.Name, "type", t.Type,
					"players", len(v.Players), "matches", len(v.Matches))
				fmt.Println(t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&spec.Name, "name", "", "Tournament name")
	cmd.Flags().StringVar(&sport, "type", string(model.SportOther), "Sport type")
	cmd.Flags().StringArrayVar(&spec.Entrants, "entrant", nil, "Direct entrant (repeatable; exactly two seed a live match)")
	cmd.Flags().StringArrayVar(&categories, "category", nil, `Category as "name:format:roster-file" (repeatable)`)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// parseCategory reads "name:format:roster-file"; format may be empty.
func parseCategory(s string) (tournament.CategorySpec, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return tournament.CategorySpec{}, fmt.Errorf("category %q: want name:format:roster-file", s)
	}
	roster, err := os.ReadFile(parts[2])
	if err != nil {
		return tournament.CategorySpec{}, fmt.Errorf("category %s: %w", parts[0], err)
	}
	return tournament.CategorySpec{Name: parts[0], Format: parts[1], Roster: string(roster)}, nil
}

func tournamentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tournaments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				ts, err := pool.ListTournaments(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tCREATED")
				for _, t := range ts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Type, t.Status, t.CreatedAt.Format(time.DateTime))
				}
				return tw.Flush()
			})
		},
	}
}

func tournamentEndCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "end",
		Short: "Mark a tournament completed (default: newest active)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(id, func(ctx context.Context, store *tournament.Store, pool *db.Pool) error {
				ended := store.View().TournamentID()
				if ended == "" {
					return model.ErrNoSelection
				}
				if err := store.Select(ctx, ended); err != nil {
					return err
				}
				if err := store.EndTournament(ctx); err != nil {
					return err
				}
				logger.Info("Tournament ended", "id", ended, "now_viewing", store.View().TournamentID())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Tournament ID")
	return cmd
}

// --------------------------------------------------------------------------
// match command
// --------------------------------------------------------------------------

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Update matches",
	}
	cmd.AddCommand(matchSetCmd())
	return cmd
}

func matchSetCmd() *cobra.Command {
	var (
		status               string
		p1, p2, sets1, sets2 int
		court, round         string
	)
	cmd := &cobra.Command{
		Use:   "set <match-id>",
		Short: "Apply a partial update; status never moves backwards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u model.MatchUpdate
			flags := cmd.Flags()
			if flags.Changed("status") {
				s := model.MatchStatus(status)
				u.Status = &s
			}
			if flags.Changed("p1") {
				u.ScoreP1 = &p1
			}
			if flags.Changed("p2") {
				u.ScoreP2 = &p2
			}
			if flags.Changed("sets-p1") {
				u.SetsP1 = &sets1
			}
			if flags.Changed("sets-p2") {
				u.SetsP2 = &sets2
			}
			if flags.Changed("court") {
				u.CourtID = &court
			}
			if flags.Changed("round") {
				u.RoundName = &round
			}
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				store := tournament.New(pool, "", logger)
				defer store.Close()
				if err := store.MutateMatch(ctx, args[0], u); err != nil {
					return err
				}
				logger.Info("Match updated", "id", args[0], "fields", len(u.Columns()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "scheduled, ongoing or completed")
	cmd.Flags().IntVar(&p1, "p1", 0, "Player 1 score")
	cmd.Flags().IntVar(&p2, "p2", 0, "Player 2 score")
	cmd.Flags().IntVar(&sets1, "sets-p1", 0, "Player 1 sets")
	cmd.Flags().IntVar(&sets2, "sets-p2", 0, "Player 2 sets")
	cmd.Flags().StringVar(&court, "court", "", "Court ID")
	cmd.Flags().StringVar(&round, "round", "", "Round name")
	return cmd
}
