package cli

import (
	"errors"
	"fmt"
	"strconv"

	"pvetax/internal/app"
	"pvetax/internal/services"

	"github.com/spf13/cobra"
)

var errConfirmRequired = errors.New("refusing to zero balances without --confirm")

func parseID(args []string, name string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s is required", name)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, args[0])
	}
	return id, nil
}

// withApp opens the app for one command run.
func withApp(cmd *cobra.Command, open opener, fn func(a *app.App) error) error {
	a, cleanup, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(a)
}

func newUpdateCharacterCmd(open opener) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "update-character <character_id>",
		Short: "Pull one character's wallet journal into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args, "character_id")
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				report, err := a.Updates.UpdateCharacter(cmd.Context(), id, force)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "update even if the character was updated recently")
	return cmd
}

func newUpdateAllCmd(open opener) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "update-all",
		Short: "Update every tracked character, then rebuild stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				summary, err := a.Updates.UpdateAll(cmd.Context(), force)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore the stale window")
	return cmd
}

func newUpdateAdminsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "update-admins",
		Short: "Ingest corporation donations and match them to characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				ingest, matched, err := a.Updates.UpdateAllAdmins(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"ingest": ingest, "match": matched})
			})
		},
	}
}

func newProcessPaymentsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "process-payments",
		Short: "Match logged payments that have no credit yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				summary, err := a.Reconcile.MatchPayments(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
}

func newUpdateStatsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "update-stats",
		Short: "Rebuild the stats snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				snapshot, err := a.Stats.Refresh(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"generated_at": snapshot.GeneratedAt})
			})
		},
	}
}

func newMonthlyCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "monthly",
		Short: "Apply interest, send first notices and rebuild stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				report, err := a.Monthly.RunMonthly(cmd.Context())
				if printErr := printJSON(cmd, report); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func newApplyInterestCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "apply-interest",
		Short: "Charge this month's interest on outstanding balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				report, err := a.Monthly.ApplyInterest(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
}

func newNotifyCmd(open opener) *cobra.Command {
	var tier string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send balance notices and the corporation summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := services.ParseTier(tier)
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				report, err := a.Monthly.NotifyDue(cmd.Context(), parsed)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
	cmd.Flags().StringVar(&tier, "tier", string(services.TierFirst), "notice tier: first, second or current")
	return cmd
}

func newZeroBalancesCmd(open opener) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "zero-balances",
		Short: "Post an adjustment that brings every balance to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errConfirmRequired
			}
			return withApp(cmd, open, func(a *app.App) error {
				summary, err := a.Ledger.ZeroBalances(cmd.Context(), cliActor)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required")
	return cmd
}

func newRecomputeCmd(open opener) *cobra.Command {
	var retax bool
	cmd := &cobra.Command{
		Use:   "recompute <character_id>",
		Short: "Rebuild a character's monthly breakdowns",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args, "character_id")
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				if retax {
					changed, err := a.Ledger.RetaxCharacter(cmd.Context(), id, cliActor)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]any{"character_id": id, "entries_changed": changed})
				}
				if err := a.Ledger.RecomputeMonthlyBreakdowns(cmd.Context(), id); err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"character_id": id, "recomputed": true})
			})
		},
	}
	cmd.Flags().BoolVar(&retax, "retax", false, "re-resolve every entry's rate under the current policy first")
	return cmd
}
