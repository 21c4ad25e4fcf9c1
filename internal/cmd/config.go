package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taspa/console/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit taspa configuration",
	Long: `Manage taspa configuration stored at $TASPA_HOME/config.yaml.

Values come from the file, then TASPA_* environment variables, then flags.

Examples:
  # Show the effective configuration
  taspa config show

  # Point the console at another API
  taspa config set api_base https://taspa.example.com/api

  # Get a single value
  taspa config get timeout
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"view"},
	Short:   "Display the effective configuration",
	Args:    cobra.NoArgs,
	RunE:    runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Get a configuration value",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys(),
	RunE:      runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the config file",
	Long: `Set a configuration value and save it to the config file.

Keys: ` + fmt.Sprint(config.Keys()),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readGlobalOptions(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), opts.configPath)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return printJSON(cmd.OutOrStdout(), cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", opts.configPath)
	fmt.Fprint(out, string(data))
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// runConfigSet edits the file alone. Environment and flag overrides are not
// written back.
func runConfigSet(cmd *cobra.Command, args []string) error {
	opts, err := readGlobalOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(opts.configPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", args[0], args[1], opts.configPath)
	return nil
}
