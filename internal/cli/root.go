// Package cli is the operator command line: the scheduled jobs and the
// ledger maintenance commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pvetax/internal/app"
	"pvetax/internal/config"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

// cliActor is the audit actor recorded for commands run from the shell.
const cliActor = "cli"

type opener func(ctx context.Context) (*app.App, func(), error)

func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("database close failed", "error", err)
		}
	}, nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "pvetax",
		Short:         "PvE tax ledger jobs and maintenance",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} v{{.Version}}\n")
	root.AddCommand(
		newUpdateCharacterCmd(open),
		newUpdateAllCmd(open),
		newUpdateAdminsCmd(open),
		newProcessPaymentsCmd(open),
		newUpdateStatsCmd(open),
		newMonthlyCmd(open),
		newApplyInterestCmd(open),
		newNotifyCmd(open),
		newZeroBalancesCmd(open),
		newRecomputeCmd(open),
		newAddAccountantCmd(open),
		newAdminCmd(open),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(openApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error: "+err.Error())
		stop()
		os.Exit(1)
	}
}

// printJSON writes a job report to stdout for cron logs.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
