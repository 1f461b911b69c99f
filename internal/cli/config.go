package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/timelock-wallet/tlw/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage tlw configuration",
	Long: `Manage tlw configuration stored in .tlw/config.yaml.

Available commands:
  show              - Show current configuration
  set <key> <value> - Set a configuration value
  get <key>         - Get a configuration value

Settable keys:
  ` + strings.Join(config.Keys(), "\n  "),
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Show the current tlw configuration from .tlw/config.yaml.",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := requireWorkspace()
		if err != nil {
			return err
		}
		cfg, err := w.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if jsonOutput {
			return outputJSON(cfg)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println("# tlw configuration")
		fmt.Printf("# Location: %s\n\n", config.Path(w.Root))
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in .tlw/config.yaml.

Examples:
  tlw config set owner 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU
  tlw config set policy.minimums.native 0.01
  tlw config set ledger.driver postgres
  tlw config set scheduler.refresh_delay 5s`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := requireWorkspace()
		if err != nil {
			return err
		}
		cfg, err := w.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		if err := config.Save(w.Root, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		if jsonOutput {
			return outputJSON(map[string]string{"key": key, "value": value})
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := requireWorkspace()
		if err != nil {
			return err
		}
		cfg, err := w.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]string{"key": args[0], "value": value})
		}
		fmt.Println(value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}
