package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/filemutex/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify filemutex configuration",
	Long: `View or modify filemutex configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  filemutex config set lock.timeout_seconds 30
  filemutex config set registry.backend sqlite

Valid keys:
  lock.timeout_seconds        - Seconds to wait for a lock
  lock.poll_interval_seconds  - Seconds between lock attempts
  registry.backend            - file or sqlite
  registry.path               - Registry location (empty for temp dir)
  logging.enabled             - Log lock diagnostics (true/false)
  logging.level               - debug, info, warn, error
  logging.file                - Log file (empty for stderr)
  logging.max_size_mb         - Rotate the log file past this size
  logging.max_backups         - Rotated files to keep
  logging.compress            - Gzip rotated files (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/filemutex/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

// configKeyTypes lists the settable keys and their value types.
var configKeyTypes = map[string]string{
	"lock.timeout_seconds":       "float",
	"lock.poll_interval_seconds": "float",
	"registry.backend":           "string",
	"registry.path":              "string",
	"logging.enabled":            "bool",
	"logging.level":              "string",
	"logging.file":               "string",
	"logging.max_size_mb":        "int",
	"logging.max_backups":        "int",
	"logging.compress":           "bool",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}
	fmt.Fprintf(out, "# Registry: %s\n", cfg.Registry.ResolvedPath())

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	kind, ok := configKeyTypes[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	typedValue, err := parseConfigValue(kind, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	viper.Set(key, typedValue)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := writeConfig(configFile, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v in %s\n", key, typedValue, configFile)
	return nil
}

func parseConfigValue(kind, value string) (any, error) {
	switch kind {
	case "bool":
		return strconv.ParseBool(value)
	case "int":
		return strconv.Atoi(value)
	case "float":
		return strconv.ParseFloat(value, 64)
	default:
		return value, nil
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'filemutex config set' to modify values", configFile)
	}

	if err := writeConfig(configFile, config.Default()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func writeConfig(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	content := "# filemutex configuration\n" + string(data)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. $HOME/.config/filemutex/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: FILEMUTEX_* (e.g., FILEMUTEX_LOCK_TIMEOUT_SECONDS)")

	return nil
}
