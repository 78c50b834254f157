package daemon

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
)

// baseExecutable is the daemon executable name without extension.
const baseExecutable = "alarm-klaxon"

// ErrAlreadyRunning is returned when another daemon process is found.
var ErrAlreadyRunning = errors.New("another alarm-klaxon daemon is already running")

// processLister returns the running processes; replaced in tests.
type processLister func() ([]ps.Process, error)

// ensureSingleInstance fails when a process with the daemon executable name,
// other than this one, is running.
func ensureSingleInstance(list processLister) error {
	processes, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()
	name := executableName()

	for _, process := range processes {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == name {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, process.Pid())
		}
	}

	return nil
}

// executableName returns the daemon executable name for this platform.
func executableName() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return baseExecutable + ".exe"
	}

	return baseExecutable
}
