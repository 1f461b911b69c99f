package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/errclass"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the ledger backend",
}

var ledgerMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the postgres ledger schema",
	Long: `Create the postgres ledger table if it does not exist.
Only meaningful with ledger.driver = postgres.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := requireWorkspace()
		if err != nil {
			return err
		}
		cfg, err := w.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Ledger.Driver != config.DriverPostgres {
			return errclass.ErrConfigInvalid.WithMessagef("ledger.driver is %q; migrate needs %q", cfg.Ledger.Driver, config.DriverPostgres)
		}

		pg, err := ledger.NewPostgres(ctx, cfg.Ledger.DSN, nil)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]any{"migrated": true})
		}
		fmt.Println("Ledger schema is up to date.")
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerMigrateCmd)
	rootCmd.AddCommand(ledgerCmd)
}
