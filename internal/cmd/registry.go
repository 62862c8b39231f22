package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/filemutex/internal/logging"
	"github.com/Iron-Ham/filemutex/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the lock file reference counts",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lock files with live sessions",
	Long: `List lock files with live sessions and their counts.

--match filters lock paths with a glob pattern, e.g. --match '/srv/**.lock'.
On a terminal the output is a table; otherwise each line is
"<count><TAB><path>".`,
	Args: cobra.NoArgs,
	RunE: runRegistryList,
}

var registryWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the counts every time the registry changes",
	Args:  cobra.NoArgs,
	RunE:  runRegistryWatch,
}

var registryMatch string

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Align(lipgloss.Right)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryWatchCmd)

	registryListCmd.Flags().StringVar(&registryMatch, "match", "", "only show lock paths matching this glob")
	registryWatchCmd.Flags().StringVar(&registryMatch, "match", "", "only show lock paths matching this glob")
}

func runRegistryList(cmd *cobra.Command, args []string) error {
	reg, logger, err := openConfiguredRegistry()
	if err != nil {
		return err
	}
	defer logger.Close()
	defer reg.Close()

	filter, err := compileMatch(registryMatch)
	if err != nil {
		return err
	}

	printCounts(cmd.OutOrStdout(), reg.Location(), filter(reg.Snapshot()))
	return nil
}

func runRegistryWatch(cmd *cobra.Command, args []string) error {
	reg, logger, err := openConfiguredRegistry()
	if err != nil {
		return err
	}
	defer logger.Close()
	defer reg.Close()

	filter, err := compileMatch(registryMatch)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w, err := registry.NewWatcher(reg, func(c registry.Counts) {
		printCounts(out, reg.Location(), filter(c))
	})
	if err != nil {
		return err
	}

	printCounts(out, reg.Location(), filter(reg.Snapshot()))
	w.Start()
	defer w.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	<-sigCh
	return nil
}

// openConfiguredRegistry opens the configured registry along with the
// logger it reports to. The caller closes both.
func openConfiguredRegistry() (*registry.Registry, *logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	reg, err := openRegistry(cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, nil, err
	}
	return reg, logger, nil
}

// compileMatch returns a filter keeping the entries whose path matches
// pattern. An empty pattern keeps everything.
func compileMatch(pattern string) (func(registry.Counts) registry.Counts, error) {
	if pattern == "" {
		return func(c registry.Counts) registry.Counts { return c }, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid --match pattern %q: %w", pattern, err)
	}
	return func(c registry.Counts) registry.Counts {
		out := make(registry.Counts)
		for p, n := range c {
			if g.Match(p) {
				out[p] = n
			}
		}
		return out
	}, nil
}

func printCounts(w io.Writer, location string, counts registry.Counts) {
	if !isTerminal(w) {
		for _, p := range counts.Paths() {
			fmt.Fprintf(w, "%d\t%s\n", counts[p], p)
		}
		return
	}

	fmt.Fprintln(w, mutedStyle.Render("registry: "+location))
	if len(counts) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no live sessions"))
		return
	}

	width := len("COUNT")
	for _, n := range counts {
		width = max(width, len(strconv.Itoa(n)))
	}
	fmt.Fprintf(w, "%s  %s\n", headerStyle.Width(width).Render("COUNT"), headerStyle.Render("LOCK FILE"))
	for _, p := range counts.Paths() {
		fmt.Fprintf(w, "%s  %s\n", countStyle.Width(width).Render(strconv.Itoa(counts[p])), p)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
