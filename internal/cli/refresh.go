package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/pkg/errclass"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the owner's locks from the ledger",
	Long:  "Fetch the owner's locks from the ledger and summarize them by status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.connect(ctx); err != nil {
			return err
		}
		if err := e.client.CurrentError(); errors.Is(err, errclass.ErrFetch) {
			return err
		}

		views := lockViews(e.client, time.Now())
		counts := map[string]int{}
		for _, v := range views {
			counts[string(v.Status)]++
		}
		if jsonOutput {
			return outputJSON(map[string]any{"total": len(views), "by_status": counts})
		}
		fmt.Printf("Fetched %d locks (%d locked, %d unlocked, %d withdrawn)\n",
			len(views), counts["locked"], counts["unlocked"], counts["withdrawn"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
