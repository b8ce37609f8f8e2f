package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ErrAlreadyRunning is returned when another process has the same executable name.
var ErrAlreadyRunning = errors.New("another instance is already running")

// processLister returns the running processes.
type processLister func() ([]ps.Process, error)

// EnsureSingle fails with ErrAlreadyRunning when a process other than the
// current one runs an executable named name.
func EnsureSingle(name string) error {
	return ensureSingle(name, os.Getpid(), ps.Processes)
}

// CurrentExecutable returns the executable name of the current process.
func CurrentExecutable() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	return filepath.Base(path), nil
}

func ensureSingle(name string, selfPID int, list processLister) error {
	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		if !sameExecutable(process.Executable(), name) {
			continue
		}

		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, process.Pid())
	}

	return nil
}

// sameExecutable compares names case-insensitively on Windows.
func sameExecutable(a, b string) bool {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return strings.EqualFold(a, b)
	}

	return a == b
}
