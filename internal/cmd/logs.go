package cmd

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/filemutex/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View lock diagnostics",
	Long: `View and filter the diagnostics log written by locking commands.

Diagnostics are only kept when logging is enabled and logging.file is set.
Rotated backups, compressed or not, are read along with the current file.

Examples:
  # Show the last 50 entries
  filemutex logs

  # Show everything about one lock file
  filemutex logs -n 0 --lock /srv/data.db.lock

  # Show entries from the last hour
  filemutex logs --since 1h

  # Search for specific patterns
  filemutex logs --grep "still waiting"

  # Export as CSV
  filemutex logs -n 0 --format csv > locks.csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail   int
	logsLevel  string
	logsSince  string
	logsLock   string
	logsGrep   string
	logsFormat string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsLock, "lock", "", "Show entries for this lock file only")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json or csv")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Logging.File == "" {
		return fmt.Errorf("diagnostics are written to stderr; set logging.file to keep them")
	}

	filter := logging.LogFilter{Level: logsLevel}
	if logsSince != "" {
		duration, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = time.Now().Add(-duration)
	}
	if logsLock != "" {
		abs, err := filepath.Abs(logsLock)
		if err != nil {
			return err
		}
		filter.LockPath = abs
	}
	if logsGrep != "" {
		filter.Pattern, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	entries, err := logging.AggregateLogs(cfg.Logging.File)
	if err != nil {
		return err
	}
	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if len(entries) == 0 && logsFormat == "text" {
		fmt.Fprintln(cmd.ErrOrStderr(), "No matching log entries found.")
		return nil
	}
	return logging.ExportLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}
