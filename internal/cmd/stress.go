package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/filemutex/internal/mutex"
	"github.com/Iron-Ham/filemutex/internal/stress"
)

var stressCmd = &cobra.Command{
	Use:   "stress <target>",
	Short: "Hammer a target with concurrent sessions and check exclusion",
	Long: `Hammer a target with concurrent sessions and check exclusion.

Each exclusive operation writes "op #N" to the target and reads it back;
each shared operation reads the target twice and expects no change. Any
mismatch is a violation and makes the command fail. The target file is
overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runStress,
}

var (
	stressWorkers     int
	stressOps         int
	stressSharedRatio float64
)

func init() {
	rootCmd.AddCommand(stressCmd)

	stressCmd.Flags().IntVar(&stressWorkers, "workers", 20, "concurrent sessions")
	stressCmd.Flags().IntVar(&stressOps, "ops", 1000, "total operations")
	stressCmd.Flags().Float64Var(&stressSharedRatio, "shared-ratio", 0, "fraction of operations taken in shared mode (0-1)")
}

func runStress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	reg, err := openRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	run := stress.DefaultConfig(args[0])
	run.Workers = stressWorkers
	run.Ops = stressOps
	run.SharedRatio = stressSharedRatio
	run.Logger = logger
	run.Options = append(mutexOptions(cfg, reg, logger), mutex.WithLogging(false))

	report, err := stress.Run(run)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.String())
	for _, v := range report.Violations {
		fmt.Fprintf(out, "  violation: %s\n", v)
	}
	if !report.OK() {
		return fmt.Errorf("stress run failed: %d violations, %d timeouts", len(report.Violations), report.Timeouts)
	}
	return nil
}
