package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/internal/countdown"
	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
	"github.com/timelock-wallet/tlw/pkg/timelock"
)

var (
	lockAmount   string
	lockAsset    string
	lockDuration string
	lockUnit     string
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Create, list and withdraw time locks",
}

var lockCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Lock funds for a duration",
	Long: `Lock an amount of an asset until now + duration.

Units are minutes, hours, days, weeks or months (a month is 30 days).

Examples:
  tlw lock create --amount 0.5 --asset sol --duration 1 --unit day
  tlw lock create --amount 25 --asset usdc --duration 2 --unit weeks`,
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

		res, err := e.client.CreateLockFromForm(ctx, lockAmount, lockAsset, lockDuration, lockUnit)
		if err != nil {
			return err
		}

		remaining := e.client.RemainingSeconds(res.LockID)
		if jsonOutput {
			return outputJSON(map[string]any{
				"lock_id":           res.LockID,
				"signature":         res.Signature,
				"unlock_timestamp":  res.UnlockTimestamp,
				"remaining_seconds": remaining,
			})
		}
		fmt.Printf("Created lock %s\n", color.LockID(res.LockID))
		fmt.Printf("  Signature: %s\n", res.Signature)
		fmt.Printf("  Unlocks:   %s (%s)\n",
			time.Unix(res.UnlockTimestamp, 0).UTC().Format(time.RFC3339), countdown.Format(remaining))
		return nil
	},
}

type lockView struct {
	model.LockRecord
	Status           model.LockStatus `json:"status"`
	RemainingSeconds int64            `json:"remaining_seconds"`
}

func lockViews(c *timelock.Client, now time.Time) []lockView {
	locks := c.CurrentLocks()
	out := make([]lockView, 0, len(locks))
	for _, l := range locks {
		out = append(out, lockView{
			LockRecord:       l,
			Status:           l.Status(now),
			RemainingSeconds: l.Remaining(now),
		})
	}
	return out
}

func printLocks(views []lockView) {
	if len(views) == 0 {
		fmt.Println("No locks.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, color.Header("ID\tAMOUNT\tSTATUS\tUNLOCKS\tREMAINING"))
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\t%s\n",
			color.LockID(v.ID),
			v.Amount.String(), v.Asset.Symbol(),
			color.Status(v.Status),
			v.UnlockTime().Format(time.RFC3339),
			countdown.Format(v.RemainingSeconds),
		)
	}
	tw.Flush()
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's locks",
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
		} else if err != nil {
			fmtErr("%s", color.Warning(errclass.ReasonOf(err)))
		}

		views := lockViews(e.client, time.Now())
		if jsonOutput {
			return outputJSON(views)
		}
		printLocks(views)
		return nil
	},
}

var lockWithdrawCmd = &cobra.Command{
	Use:   "withdraw <lock-id>",
	Short: "Withdraw an unlocked lock",
	Args:  cobra.ExactArgs(1),
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

		id := args[0]
		res, err := e.client.Withdraw(ctx, id)
		if err != nil {
			return explainWithdrawError(err, id, e.client.CurrentLocks())
		}

		if jsonOutput {
			return outputJSON(res)
		}
		fmt.Printf("Withdrew lock %s\n", color.LockID(res.LockID))
		fmt.Printf("  Signature: %s\n", res.Signature)
		return nil
	},
}

func init() {
	lockCreateCmd.Flags().StringVar(&lockAmount, "amount", "", "amount to lock (decimal)")
	lockCreateCmd.Flags().StringVar(&lockAsset, "asset", "sol", "asset: sol|native or usdc|token")
	lockCreateCmd.Flags().StringVar(&lockDuration, "duration", "", "lock duration as a whole number of units")
	lockCreateCmd.Flags().StringVar(&lockUnit, "unit", "days", "duration unit: minutes|hours|days|weeks|months")
	_ = lockCreateCmd.MarkFlagRequired("amount")
	_ = lockCreateCmd.MarkFlagRequired("duration")

	lockCmd.AddCommand(lockCreateCmd, lockListCmd, lockWithdrawCmd)
	rootCmd.AddCommand(lockCmd)
}
