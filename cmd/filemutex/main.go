package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/filemutex/internal/cmd"
	"github.com/Iron-Ham/filemutex/internal/errors"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		// The child already reported its own failure.
		if exitErr.Code == cmd.ExitTempFail {
			fmt.Fprintln(os.Stderr, errorPrefix(err), err)
		}
		os.Exit(exitErr.Code)
	}

	fmt.Fprintln(os.Stderr, errorPrefix(err), err)
	os.Exit(1)
}

// errorPrefix labels err for stderr. User-facing errors below error
// severity, such as a lock timeout or a bad flag value, read as plain
// messages; everything else is marked as an error.
func errorPrefix(err error) string {
	if errors.IsUserFacing(err) && errors.GetSeverity(err) < errors.SeverityError {
		return "filemutex:"
	}
	return "Error:"
}
