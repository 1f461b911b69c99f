package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/errclass"
)

var (
	jsonOutput  bool
	ownerFlag   string
	noColorFlag bool
	rootCmd     = &cobra.Command{
		Use:   "tlw",
		Short: "tlw - time-locked wallet",
		Long: `tlw is a time-locked wallet. It locks funds until a chosen instant
and releases them afterwards.

It turns (amount, duration) intents into ledger lock requests, lists the
owner's locks with a live countdown, and withdraws locks once they unlock.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColorFlag)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "wallet identity to act as (overrides config owner)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmtErr("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps error classes to process exit codes. Local rejections exit 2
// so scripts can tell them from ledger failures.
func exitCode(err error) int {
	switch errclass.CodeOf(err) {
	case errclass.ErrInvalidInput.Code, errclass.ErrNotWithdrawable.Code,
		errclass.ErrOperationInProgress.Code, errclass.ErrNotConnected.Code:
		return 2
	}
	return 1
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "tlw: "
	if color.Enabled() {
		prefix = color.Error("tlw:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
