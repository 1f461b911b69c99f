package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/internal/journal"
	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/model"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the notification journal",
	Long: `Every notification tlw emits is appended to .tlw/journal.jsonl. Each record
carries the SHA-256 of the previous one, so edits and deletions break the chain.`,
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the journal hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := requireWorkspace()
		if err != nil {
			return err
		}
		n, err := journal.Verify(w.JournalPath())
		if jsonOutput {
			out := map[string]any{"records": n, "valid": err == nil}
			if err != nil {
				out["error"] = err.Error()
			}
			if jerr := outputJSON(out); jerr != nil {
				return jerr
			}
			return err
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d records)\n", color.Success("Journal chain intact"), n)
		return nil
	},
}

var journalShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := requireWorkspace()
		if err != nil {
			return err
		}
		recs, err := journal.New(w.JournalPath(), nil).Records()
		if err != nil {
			return err
		}
		if journalLimit > 0 && len(recs) > journalLimit {
			recs = recs[len(recs)-journalLimit:]
		}

		if jsonOutput {
			if recs == nil {
				recs = []model.JournalRecord{}
			}
			return outputJSON(recs)
		}
		for _, r := range recs {
			n := r.Notification
			kind := color.Success(string(n.Kind))
			if n.Kind == model.NotificationFailure {
				kind = color.Error(string(n.Kind))
			}
			fmt.Printf("%4d  %s  %-7s  %s", r.Seq, n.At.Format(time.RFC3339), kind, n.Title)
			if n.Description != "" {
				fmt.Printf(": %s", n.Description)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	journalShowCmd.Flags().IntVar(&journalLimit, "limit", 20, "show at most this many records (0 for all)")
	journalCmd.AddCommand(journalVerifyCmd, journalShowCmd)
	rootCmd.AddCommand(journalCmd)
}
