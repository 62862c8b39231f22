package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/filemutex/internal/errors"
	"github.com/Iron-Ham/filemutex/internal/mutex"
	"github.com/Iron-Ham/filemutex/internal/registry"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupTestEnvironment isolates config and registry locations and resets
// state left behind by earlier command runs. It returns the registry path.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	regPath := filepath.Join(dir, "refcounts.yaml")

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("FILEMUTEX_REGISTRY_PATH", regPath)

	viper.Reset()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.enabled", rootCmd.PersistentFlags().Lookup("verbose"))
	resetFlags(rootCmd)
	t.Cleanup(func() {
		viper.Reset()
		resetFlags(rootCmd)
	})
	return regPath
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "filemutex" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "filemutex")
	}

	expectedCmds := []string{"run", "registry", "stress", "config", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestRunCommand(t *testing.T) {
	requireShell(t)
	regPath := setupTestEnvironment(t)
	target := filepath.Join(t.TempDir(), "data.txt")

	output, err := executeCommand(rootCmd, "run", target, "--",
		"sh", "-c", `echo "target=$FILEMUTEX_TARGET"; echo "badge=$FILEMUTEX_BADGE"`)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}

	if !strings.Contains(output, "target="+target) {
		t.Errorf("output = %q, want target in environment", output)
	}
	if !strings.Contains(output, "mode=exclusive") {
		t.Errorf("output = %q, want exclusive badge", output)
	}
	if _, err := os.Stat(target + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file should be removed after the command exits")
	}

	reg, err := registry.NewFileRegistry(regPath)
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}
	if snap := reg.Snapshot(); len(snap) != 0 {
		t.Errorf("registry should be empty, got %v", snap)
	}
}

func TestRunCommand_SharedAndLockPath(t *testing.T) {
	requireShell(t)
	setupTestEnvironment(t)
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "custom.lock")

	output, err := executeCommand(rootCmd, "run", "--shared", "--lock-path", lockPath,
		filepath.Join(dir, "data.txt"), "--", "sh", "-c", `echo "$FILEMUTEX_BADGE"; test -f "`+lockPath+`"`)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "mode=shared") {
		t.Errorf("output = %q, want shared badge", output)
	}
}

func TestRunCommand_PropagatesExitCode(t *testing.T) {
	requireShell(t)
	setupTestEnvironment(t)

	_, err := executeCommand(rootCmd, "run", filepath.Join(t.TempDir(), "x"), "--", "sh", "-c", "exit 3")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
}

func TestRunCommand_SignaledChild(t *testing.T) {
	requireShell(t)
	if runtime.GOOS == "windows" {
		t.Skip("signals are not delivered this way on windows")
	}
	setupTestEnvironment(t)

	_, err := executeCommand(rootCmd, "run", filepath.Join(t.TempDir(), "x"), "--", "sh", "-c", "kill -TERM $$")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if want := 128 + int(syscall.SIGTERM); exitErr.Code != want {
		t.Errorf("Code = %d, want %d", exitErr.Code, want)
	}
}

func TestRunCommand_TimeoutExitsTempFail(t *testing.T) {
	requireShell(t)
	regPath := setupTestEnvironment(t)
	target := filepath.Join(t.TempDir(), "busy.txt")

	reg, err := registry.NewFileRegistry(regPath)
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}
	holder, err := mutex.New(target, mutex.WithRegistry(reg))
	if err != nil {
		t.Fatalf("mutex.New failed: %v", err)
	}
	s, err := holder.Acquire(true)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() { _ = s.Release() }()

	ran := filepath.Join(t.TempDir(), "ran")
	_, err = executeCommand(rootCmd, "run", "--timeout", "50ms", "--poll", "5ms", target, "--", "touch", ran)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.Code != ExitTempFail {
		t.Errorf("Code = %d, want %d", exitErr.Code, ExitTempFail)
	}
	if !errors.IsCantLock(err) {
		t.Error("error should wrap the CantLock failure")
	}
	if _, err := os.Stat(ran); !os.IsNotExist(err) {
		t.Error("command must not run when the lock is not obtained")
	}
}

func TestSplitRunArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		dash        int
		wantTarget  string
		wantCommand []string
		wantErr     bool
	}{
		{"with dash", []string{"t", "ls", "-l"}, 1, "t", []string{"ls", "-l"}, false},
		{"without dash", []string{"t", "ls"}, -1, "t", []string{"ls"}, false},
		{"two targets", []string{"a", "b", "ls"}, 2, "", nil, true},
		{"nothing after dash", []string{"t"}, 1, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, command, err := splitRunArgs(tt.args, tt.dash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitRunArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if target != tt.wantTarget || strings.Join(command, " ") != strings.Join(tt.wantCommand, " ") {
				t.Errorf("splitRunArgs() = (%q, %v)", target, command)
			}
		})
	}
}

func TestRegistryList(t *testing.T) {
	regPath := setupTestEnvironment(t)
	dir := t.TempDir()

	reg, err := registry.NewFileRegistry(regPath)
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}
	aPath := filepath.Join(dir, "a.txt.lock")
	bPath := filepath.Join(dir, "b.db.lock")
	fa, err := reg.Register(aPath)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer func() { _ = reg.Deregister(aPath, fa) }()
	fb, err := reg.Register(bPath)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer func() { _ = reg.Deregister(bPath, fb) }()

	output, err := executeCommand(rootCmd, "registry", "list")
	if err != nil {
		t.Fatalf("registry list failed: %v", err)
	}
	want := "1\t" + aPath + "\n1\t" + bPath + "\n"
	if output != want {
		t.Errorf("output = %q, want %q", output, want)
	}

	output, err = executeCommand(rootCmd, "registry", "list", "--match", "*.db.lock")
	if err != nil {
		t.Fatalf("registry list --match failed: %v", err)
	}
	if output != "1\t"+bPath+"\n" {
		t.Errorf("filtered output = %q, want only %s", output, bPath)
	}
}

func TestRegistryList_LogsToConfiguredFile(t *testing.T) {
	regPath := setupTestEnvironment(t)
	logFile := filepath.Join(t.TempDir(), "filemutex.log")
	t.Setenv("FILEMUTEX_LOGGING_FILE", logFile)

	if err := os.WriteFile(regPath, []byte("{not: [valid"), 0644); err != nil {
		t.Fatalf("failed to write registry: %v", err)
	}

	output, err := executeCommand(rootCmd, "--verbose", "registry", "list")
	if err != nil {
		t.Fatalf("registry list failed: %v", err)
	}
	if output != "" {
		t.Errorf("output = %q, want no entries for a corrupt registry", output)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "registry unreadable, starting fresh") {
		t.Errorf("log file = %q, want corruption diagnostic", data)
	}
}

func TestRegistryList_BadPattern(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "registry", "list", "--match", "[unclosed"); err == nil {
		t.Error("expected error for invalid glob")
	}
}

func TestStressCommand(t *testing.T) {
	setupTestEnvironment(t)
	target := filepath.Join(t.TempDir(), "data.txt")

	output, err := executeCommand(rootCmd, "stress", target, "--workers", "4", "--ops", "40", "--shared-ratio", "0.25")
	if err != nil {
		t.Fatalf("stress failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "40 ops (30 exclusive, 10 shared)") {
		t.Errorf("output = %q", output)
	}
	if strings.Contains(output, "violation") {
		t.Errorf("unexpected violations: %s", output)
	}
}

func TestStressCommand_InvalidFlags(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(rootCmd, "stress", filepath.Join(t.TempDir(), "x"), "--workers", "0")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestConfigInitShowPath(t *testing.T) {
	setupTestEnvironment(t)
	configFile := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "filemutex", "config.yaml")

	output, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(output, configFile) {
		t.Errorf("output = %q, want %s", output, configFile)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "timeout_seconds: 16") {
		t.Errorf("config file = %q, want default timeout", data)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should refuse to overwrite")
	}

	output, err = executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"lock:", "poll_interval_seconds: 0.005", "backend: file"} {
		if !strings.Contains(output, want) {
			t.Errorf("config show output missing %q:\n%s", want, output)
		}
	}

	output, err = executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if !strings.Contains(output, "FILEMUTEX_") {
		t.Errorf("config path output = %q", output)
	}
}

func TestConfigSet(t *testing.T) {
	setupTestEnvironment(t)
	configFile := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "filemutex", "config.yaml")

	output, err := executeCommand(rootCmd, "config", "set", "lock.timeout_seconds", "30")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(output, "lock.timeout_seconds = 30") {
		t.Errorf("output = %q", output)
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "timeout_seconds: 30") {
		t.Errorf("config file = %q, want updated timeout", data)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "lock.retries", "3"}},
		{"bad bool", []string{"config", "set", "logging.enabled", "sometimes"}},
		{"bad number", []string{"config", "set", "lock.timeout_seconds", "soon"}},
		{"fails validation", []string{"config", "set", "registry.backend", "etcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(rootCmd, tt.args...); err == nil {
				t.Errorf("config set %v should fail", tt.args[2:])
			}
		})
	}
}

func TestVerboseLogsDiagnostics(t *testing.T) {
	requireShell(t)
	setupTestEnvironment(t)
	logFile := filepath.Join(t.TempDir(), "filemutex.log")
	t.Setenv("FILEMUTEX_LOGGING_FILE", logFile)

	_, err := executeCommand(rootCmd, "--verbose", "run", filepath.Join(t.TempDir(), "x"), "--", "true")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"locked"`) || !strings.Contains(string(data), `"msg":"unlocked"`) {
		t.Errorf("log file = %q, want locked and unlocked entries", data)
	}
}

func TestLogsCommand(t *testing.T) {
	setupTestEnvironment(t)
	logFile := filepath.Join(t.TempDir(), "filemutex.log")
	t.Setenv("FILEMUTEX_LOGGING_FILE", logFile)

	lines := []string{
		`{"time":"2026-10-19T10:00:00Z","level":"DEBUG","msg":"locked","lock_path":"/srv/a.lock"}`,
		`{"time":"2026-10-19T10:00:01Z","level":"DEBUG","msg":"still waiting","lock_path":"/srv/b.lock","attempts":200}`,
		`{"time":"2026-10-19T10:00:02Z","level":"DEBUG","msg":"unlocked","lock_path":"/srv/a.lock"}`,
	}
	if err := os.WriteFile(logFile, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	output, err := executeCommand(rootCmd, "logs", "--lock", "/srv/a.lock")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if !strings.Contains(output, "locked lock_path=/srv/a.lock") || strings.Contains(output, "still waiting") {
		t.Errorf("output = %q", output)
	}

	output, err = executeCommand(rootCmd, "logs", "--grep", "attempts=200", "--format", "csv")
	if err != nil {
		t.Fatalf("logs --grep failed: %v", err)
	}
	if !strings.Contains(output, "still waiting,/srv/b.lock") {
		t.Errorf("csv output = %q", output)
	}

	output, err = executeCommand(rootCmd, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs -n 1 failed: %v", err)
	}
	if strings.Count(output, "\n") != 1 || !strings.Contains(output, "unlocked") {
		t.Errorf("tail output = %q", output)
	}

	if _, err := executeCommand(rootCmd, "logs", "--since", "soon"); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLogsCommand_NoFile(t *testing.T) {
	setupTestEnvironment(t)

	if _, err := executeCommand(rootCmd, "logs"); err == nil {
		t.Error("expected error when logging.file is not set")
	}
}
