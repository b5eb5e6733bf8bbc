package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/command"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/config"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/db"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/tournament"
)

// --------------------------------------------------------------------------
// ads command
// --------------------------------------------------------------------------

func adsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ads",
		Short: "Manage sponsor ads",
	}
	cmd.AddCommand(adsAddCmd())
	cmd.AddCommand(adsListCmd())
	cmd.AddCommand(adsToggleCmd())
	cmd.AddCommand(adsDeleteCmd())
	return cmd
}

func adsAddCmd() *cobra.Command {
	var (
		tournamentID   string
		spec           tournament.AdSpec
		kind, location string
		inactive       bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a sponsor ad (default: newest active tournament)",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Type = model.AdKind(kind)
			spec.DisplayLocation = model.AdLocation(location)
			spec.IsActive = !inactive
			return runStore(tournamentID, func(ctx context.Context, store *tournament.Store, pool *db.Pool) error {
				id := store.View().TournamentID()
				if id == "" {
					return model.ErrNoSelection
				}
				// Pin the selection so the insert targets the resolved tournament.
				if err := store.Select(ctx, id); err != nil {
					return err
				}
				ad, err := store.AddAd(ctx, spec)
				if err != nil {
					return err
				}
				logger.Info("Ad added", "id", ad.ID, "tournament_id", id, "type", ad.Type, "location", ad.DisplayLocation)
				fmt.Println(ad.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tournamentID, "tournament", "", "Tournament ID")
	cmd.Flags().StringVar(&spec.URL, "url", "", "Creative URL")
	cmd.Flags().StringVar(&kind, "type", "", "image or video (default image)")
	cmd.Flags().IntVar(&spec.Duration, "duration", 0, "Seconds on screen for images")
	cmd.Flags().StringVar(&location, "location", "", "fullscreen, sidebar or banner (default fullscreen)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Add without activating")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func adsListCmd() *cobra.Command {
	var tournamentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every ad of a tournament, active or not",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				ads, err := pool.ListAds(ctx, tournamentID)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tLOCATION\tACTIVE\tDURATION\tURL")
				for _, a := range ads {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\n", a.ID, a.Type, a.DisplayLocation, a.IsActive, a.Duration, a.URL)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&tournamentID, "tournament", "", "Tournament ID")
	_ = cmd.MarkFlagRequired("tournament")
	return cmd
}

func adsToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <ad-id>",
		Short: "Flip an ad's active flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				active, err := pool.ToggleAd(ctx, args[0])
				if err != nil {
					return err
				}
				logger.Info("Ad toggled", "id", args[0], "is_active", active)
				return nil
			})
		},
	}
}

func adsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ad-id>",
		Short: "Delete an ad",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				if err := pool.DeleteAd(ctx, args[0]); err != nil {
					return err
				}
				logger.Info("Ad deleted", "id", args[0])
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// command command
// --------------------------------------------------------------------------

func commandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Send console commands as the master",
	}
	cmd.AddCommand(commandSendCmd())
	return cmd
}

func commandSendCmd() *cobra.Command {
	var (
		tournamentID string
		typ, target  string
		payload      string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish one command on a tournament's channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload is not valid JSON")
			}
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				ch, err := command.Open(ctx, command.Options{
					TournamentID: tournamentID,
					Role:         config.RoleMaster,
					Transport:    command.NewPGTransport(pool, cfg.DatabaseURL, logger),
					States:       pool,
					Logger:       logger,
				})
				if err != nil {
					return err
				}
				defer ch.Close()

				m, err := ch.Send(ctx, command.Type(typ), json.RawMessage(payload), command.Target(target))
				if err != nil {
					return err
				}
				logger.Info("Command sent", "type", m.Type, "target", m.TargetRole, "channel", command.ChannelName(tournamentID))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tournamentID, "tournament", "", "Tournament ID")
	cmd.Flags().StringVar(&typ, "type", "", "LOCK_UI, SWITCH_VIEW, PLAY_FX or AD_CONTROL")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().StringVar(&target, "target", "", "referee, display or all (default per type)")
	_ = cmd.MarkFlagRequired("tournament")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
