package cli

import (
	"encoding/json"
	"fmt"

	"pvetax/internal/app"
	"pvetax/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

func newAddAccountantCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "add-accountant <eve_character_id> <corporation_id> <name>",
		Short: "Track a character whose corporation wallet receives tax payments",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eveID, err := parseID(args[:1], "eve_character_id")
			if err != nil {
				return err
			}
			corpID, err := parseID(args[1:2], "corporation_id")
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				row, err := a.Stores.AdminCharacters.Create(cmd.Context(), eveID, corpID, args[2])
				if err != nil {
					return err
				}
				return printJSON(cmd, row)
			})
		},
	}
}

func newAdminCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage operator accounts",
	}
	cmd.AddCommand(newPromoteCmd(open), newGrantCmd(open))
	return cmd
}

func newPromoteCmd(open opener) *cobra.Command {
	var super bool
	cmd := &cobra.Command{
		Use:   "promote <account_id>",
		Short: "Make an identity account an admin. The first admin is always super.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID := args[0]
			return withApp(cmd, open, func(a *app.App) error {
				ctx := cmd.Context()
				if _, err := a.Stores.Identity.GetAccount(ctx, accountID); err != nil {
					return fmt.Errorf("account %s: %w", accountID, err)
				}
				hasAny, err := a.Stores.Admins.HasAnyAdmin(ctx)
				if err != nil {
					return err
				}
				isSuper := super || !hasAny
				err = a.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
					if err := a.Stores.Admins.CreateAdmin(ctx, tx, accountID, isSuper, nil); err != nil {
						return err
					}
					data, _ := json.Marshal(map[string]any{"target_account_id": accountID, "is_super": isSuper})
					return a.Stores.Audit.Log(ctx, tx, cliActor, "promote_admin", "admin", accountID, string(data))
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"account_id": accountID, "is_super": isSuper})
			})
		},
	}
	cmd.Flags().BoolVar(&super, "super", false, "grant super admin")
	return cmd
}

func newGrantCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <account_id> <role>",
		Short: "Grant an admin the ledger or settings role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, role := args[0], args[1]
			if !store.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			return withApp(cmd, open, func(a *app.App) error {
				ctx := cmd.Context()
				isAdmin, _, err := a.Stores.Admins.IsAdmin(ctx, accountID)
				if err != nil {
					return err
				}
				if !isAdmin {
					return fmt.Errorf("account %s is not an admin", accountID)
				}
				err = a.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
					if err := a.Stores.Admins.GrantRole(ctx, tx, accountID, role); err != nil {
						return err
					}
					data, _ := json.Marshal(map[string]string{"admin_account_id": accountID, "role": role})
					return a.Stores.Audit.Log(ctx, tx, cliActor, "grant_role", "admin_role", accountID, string(data))
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{"account_id": accountID, "role": role, "status": "granted"})
			})
		},
	}
}

