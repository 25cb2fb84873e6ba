package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"repostreach/pkg/config"
	"repostreach/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage repostreach configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (REPOSTREACH_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default value.

The file is created in the current directory as 'repostreach.yaml'
unless a different path is given with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

Credentials are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "repostreach.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", path)
		return fmt.Errorf("%s already exists", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store credentials with 'repostreach auth login'")
	fmt.Println("2. Run 'repostreach config validate' to check the configuration")
	fmt.Println("3. Start a run with 'repostreach run posts.csv'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(maskedConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (REPOSTREACH_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return err
	}

	var warnings []string
	if cfg.Social.Backend == "twitter" && !cfg.HasTwitterCredentials() {
		warnings = append(warnings, "Twitter tokens not in configuration; the credential store will be used")
	}
	if cfg.Input.Path == "" {
		warnings = append(warnings, "No input path configured; pass it to 'repostreach run'")
	}
	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Backend: %s\n", cfg.Social.Backend)
	fmt.Printf("  Cooldown: %s\n", cfg.Pipeline.Cooldown)
	fmt.Printf("  Checkpoint every: %d items (%s)\n", cfg.Pipeline.CheckpointEvery, cfg.Checkpoint.Backend)
	fmt.Printf("  Result file: %s\n", resultPath(cfg))
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// maskedConfig returns a copy with every credential shortened
func maskedConfig(cfg *config.Config) *config.Config {
	display := *cfg
	for _, v := range []*string{
		&display.Social.ConsumerKey,
		&display.Social.ConsumerSecret,
		&display.Social.AccessToken,
		&display.Social.AccessSecret,
		&display.Social.BlueskyAppPassword,
	} {
		*v = mask(*v)
	}
	return &display
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}
