package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timelock-wallet/tlw/internal/workspace"
	"github.com/timelock-wallet/tlw/pkg/color"
	"github.com/timelock-wallet/tlw/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a tlw workspace",
	Long: `Initialize a tlw workspace in dir (default: the current directory).

This creates:
  - .tlw/ state directory
  - format_version file (version 1)
  - config.yaml with the default minimums and the file ledger`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		path := cwd
		if len(args) == 1 {
			path = filepath.Join(cwd, args[0])
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}

		w, err := workspace.Init(path)
		if err != nil {
			return fmt.Errorf("failed to initialize workspace: %w", err)
		}

		if ownerFlag != "" {
			cfg, err := w.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Set("owner", ownerFlag); err != nil {
				return err
			}
			if err := config.Save(w.Root, cfg); err != nil {
				return err
			}
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"root":           w.Root,
				"format_version": w.FormatVersion,
				"workspace_id":   w.ID,
			})
		}
		fmt.Printf("Initialized tlw workspace in %s\n", color.Success(w.Root))
		if ownerFlag == "" {
			fmt.Println(color.Dim("  " + suggestOwner()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
