// Package stress drives many concurrent sessions against one target and
// checks that every exclusive holder reads back exactly what it wrote.
package stress

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/filemutex/internal/errors"
	"github.com/Iron-Ham/filemutex/internal/logging"
	"github.com/Iron-Ham/filemutex/internal/mutex"
)

// Config describes one stress run.
type Config struct {
	Target      string
	Workers     int
	Ops         int
	SharedRatio float64 // fraction of operations taken in shared mode
	Options     []mutex.Option
	Logger      *logging.Logger
}

// DefaultConfig returns a run of 20 workers performing 1000 exclusive
// operations on target.
func DefaultConfig(target string) Config {
	return Config{
		Target:  target,
		Workers: 20,
		Ops:     1000,
	}
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return errors.NewValidationError("workers must be positive").WithField("workers").WithValue(c.Workers)
	case c.Ops <= 0:
		return errors.NewValidationError("ops must be positive").WithField("ops").WithValue(c.Ops)
	case c.SharedRatio < 0 || c.SharedRatio > 1:
		return errors.NewValidationError("shared ratio must be between 0 and 1").
			WithField("shared_ratio").WithValue(c.SharedRatio)
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Ops        int
	Exclusive  int
	Shared     int
	Timeouts   int
	Violations []string
	MaxWait    time.Duration
	Elapsed    time.Duration
}

// OK reports whether the run saw no violations and no timeouts.
func (r *Report) OK() bool {
	return len(r.Violations) == 0 && r.Timeouts == 0
}

func (r *Report) String() string {
	return fmt.Sprintf("%d ops (%d exclusive, %d shared) in %s, max wait %s, %d timeouts, %d violations",
		r.Ops, r.Exclusive, r.Shared, r.Elapsed.Round(time.Millisecond),
		r.MaxWait.Round(time.Microsecond), r.Timeouts, len(r.Violations))
}

// Run performs cfg.Ops operations with at most cfg.Workers in flight.
// Exclusive operations write "op #N" to the target and read it back.
// Shared operations read the target twice and expect no change in between.
// Errors other than timeouts abort the run.
func Run(cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	m, err := mutex.New(cfg.Target, cfg.Options...)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		report   = &Report{Ops: cfg.Ops}
		timeouts atomic.Int32
	)
	violate := func(format string, args ...any) {
		mu.Lock()
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	sharedEvery := sharedPattern(cfg.SharedRatio)
	start := time.Now()
	p := pool.New().WithMaxGoroutines(cfg.Workers).WithErrors()

	for n := 1; n <= cfg.Ops; n++ {
		exclusive := !sharedEvery(n)
		mu.Lock()
		if exclusive {
			report.Exclusive++
		} else {
			report.Shared++
		}
		mu.Unlock()

		p.Go(func() error {
			s, err := m.Acquire(exclusive)
			if errors.IsCantLock(err) {
				timeouts.Add(1)
				logger.Warn("operation timed out", "op", n, "error", err.Error())
				return nil
			}
			if err != nil {
				return fmt.Errorf("op #%d: %w", n, err)
			}
			defer func() { _ = s.Release() }()

			mu.Lock()
			report.MaxWait = max(report.MaxWait, s.Waited())
			mu.Unlock()

			if exclusive {
				return writeAndCheck(m.Target(), n, violate)
			}
			return readAndCheck(m.Target(), n, violate)
		})
	}

	err = p.Wait()
	report.Elapsed = time.Since(start)
	report.Timeouts = int(timeouts.Load())
	logger.Info("stress run finished", "report", report.String())
	return report, err
}

func writeAndCheck(path string, n int, violate func(string, ...any)) error {
	text := fmt.Sprintf("op #%d", n)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("op #%d: %w", n, err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("op #%d: %w", n, err)
	}
	if string(got) != text {
		violate("op #%d wrote %q but read back %q", n, text, got)
	}
	return nil
}

func readAndCheck(path string, n int, violate func(string, ...any)) error {
	first, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("op #%d: %w", n, err)
	}
	time.Sleep(50 * time.Microsecond)
	second, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("op #%d: %w", n, err)
	}
	if string(first) != string(second) {
		violate("op #%d saw %q change to %q while holding a shared lock", n, first, second)
	}
	if len(first) > 0 && !strings.HasPrefix(string(first), "op #") {
		violate("op #%d read unexpected content %q", n, first)
	}
	return nil
}

// sharedPattern spreads shared operations evenly: with ratio r, operation n
// is shared when floor(n*r) advances.
func sharedPattern(ratio float64) func(n int) bool {
	return func(n int) bool {
		return int(float64(n)*ratio) > int(float64(n-1)*ratio)
	}
}
