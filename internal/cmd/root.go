package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/filemutex/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "filemutex",
	Short: "File-based mutual exclusion across goroutines and processes",
	Long: `filemutex serializes access to a path with an advisory lock on a
sibling ".lock" file. Independent processes on the same machine exclude one
another; a shared registry counts live holders so the lock file disappears
once the last one releases it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/filemutex/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log lock diagnostics")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.enabled", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/filemutex")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FILEMUTEX")
	// Replace dots with underscores for nested keys in env vars
	// e.g., FILEMUTEX_LOCK_TIMEOUT_SECONDS for lock.timeout_seconds
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
