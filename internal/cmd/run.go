package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/filemutex/internal/errors"
	"github.com/Iron-Ham/filemutex/internal/mutex"
)

// ExitTempFail is returned when the lock could not be obtained in time
// (EX_TEMPFAIL from sysexits.h).
const ExitTempFail = 75

var runCmd = &cobra.Command{
	Use:   "run [flags] <target> -- <command> [args...]",
	Short: "Run a command while holding the lock on target",
	Long: `Run a command while holding the lock on target.

The lock is exclusive unless --shared is given. The command inherits
stdin, stdout and stderr, and sees FILEMUTEX_TARGET and FILEMUTEX_BADGE in
its environment. filemutex exits with the command's status, or 75 when the
lock could not be obtained before the timeout.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

var (
	runShared   bool
	runLockPath string
	runTimeout  time.Duration
	runPoll     time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runShared, "shared", false, "take a shared lock instead of an exclusive one")
	runCmd.Flags().StringVar(&runLockPath, "lock-path", "", "lock file to use (default <target>.lock)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "how long to wait for the lock (default from config)")
	runCmd.Flags().DurationVar(&runPoll, "poll", 0, "sleep between lock attempts (default from config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	target, command, err := splitRunArgs(args, cmd.ArgsLenAtDash())
	if err != nil {
		return err
	}

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

	opts := mutexOptions(cfg, reg, logger)
	if cmd.Flags().Changed("lock-path") {
		opts = append(opts, mutex.WithLockPath(runLockPath))
	}
	if cmd.Flags().Changed("timeout") {
		opts = append(opts, mutex.WithTimeout(runTimeout))
	}
	if cmd.Flags().Changed("poll") {
		opts = append(opts, mutex.WithPollInterval(runPoll))
	}

	m, err := mutex.New(target, opts...)
	if err != nil {
		return err
	}

	s, err := m.Acquire(!runShared)
	if err != nil {
		if errors.IsRetryable(err) {
			return &ExitError{Code: ExitTempFail, Err: err}
		}
		return err
	}
	defer func() { _ = s.Release() }()

	child := exec.Command(command[0], command[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Env = append(os.Environ(),
		"FILEMUTEX_TARGET="+s.Target(),
		"FILEMUTEX_BADGE="+s.Badge().String(),
	)

	if err := child.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: childExitCode(exitErr), Err: err}
		}
		return errors.Wrapf(err, "run %s", command[0])
	}
	return nil
}

// childExitCode returns the status to exit with for a failed child. A
// child killed by a signal maps to 128+signo, as shells report it.
func childExitCode(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return 1
}

// splitRunArgs separates the target from the command. The "--" separator
// is optional; without it everything after the target is the command.
func splitRunArgs(args []string, dash int) (string, []string, error) {
	switch {
	case dash == -1:
		return args[0], args[1:], nil
	case dash != 1:
		return "", nil, fmt.Errorf("expected exactly one target before --, got %d", dash)
	case len(args) < 2:
		return "", nil, fmt.Errorf("no command given after --")
	default:
		return args[0], args[1:], nil
	}
}
