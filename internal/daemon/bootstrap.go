package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// SpawnDaemon re-executes the current binary with the hidden "daemon"
// command, detached from the terminal, and returns the child's pid.
// The child acquires the lease itself; the parent only observes it.
func SpawnDaemon() (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(executable, "daemon")
	cmd.Env = os.Environ()

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - the daemon logs to its own file
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()

	return cmd.Process.Pid, nil
}
