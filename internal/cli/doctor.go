package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/internal/doctor"
	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/pkg/color"
)

var doctorOffline bool

var errUnhealthy = errors.New("workspace is unhealthy")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check workspace health",
	Long: `Check workspace health.

Checks the format version, the config, the journal hash chain and, when an
owner is known, the owner's ledger records. Withdrawn records whose unlock
instant has not passed are reported; nothing is repaired.
Use --offline to skip the ledger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := requireWorkspace()
		if err != nil {
			return err
		}

		var (
			l     ledger.Ledger
			owner string
		)
		if !doctorOffline {
			if cfg, err := w.LoadConfig(); err == nil {
				owner = ownerFlag
				if owner == "" {
					owner = cfg.Owner
				}
				if owner != "" {
					if l, err = ledger.Open(ctx, cfg, w.Root, nil); err != nil {
						return err
					}
					defer l.Close()
				}
			}
		}

		result, err := doctor.NewDoctor(w.Root, l, nil).Check(ctx, owner)
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			fmt.Println(color.Success("Workspace is healthy."))
		} else {
			fmt.Printf("Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				fmt.Printf("  [%s] %s: %s\n", severity(f.Severity), f.Category, f.Description)
			}
		}

		if !result.Healthy {
			return errUnhealthy
		}
		return nil
	},
}

func severity(s string) string {
	switch s {
	case doctor.SeverityCritical, doctor.SeverityError:
		return color.Error(s)
	case doctor.SeverityWarning:
		return color.Warning(s)
	}
	return color.Dim(s)
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip ledger checks")
	rootCmd.AddCommand(doctorCmd)
}
