package firecracker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePID persists the firecracker (or jailer) process PID to the
// lab's state dir so a restarted control plane can still find and
// verify it.
func writePID(d labDir, pid int) error {
	return os.WriteFile(d.pidPath(), []byte(strconv.Itoa(pid)), 0o600)
}

func readPID(d labDir) (int, error) {
	raw, err := os.ReadFile(d.pidPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("pid file contains garbage: %w", err)
	}
	return pid, nil
}

// cmdlineMatches reports whether the process identified by pid has
// "firecracker" or "jailer" somewhere in its /proc/<pid>/cmdline. This
// is the PID-reuse guard from spec.md §9: a recorded PID may by now
// belong to an unrelated process if the original one exited and the
// kernel recycled the PID, so no signal is ever sent on PID alone.
func cmdlineMatches(pid int) bool {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}
	fields := strings.Split(string(raw), "\x00")
	for _, f := range fields {
		if strings.Contains(f, "firecracker") || strings.Contains(f, "jailer") {
			return true
		}
	}
	return false
}

// signalVM re-reads the pid file and verifies the cmdline match before
// sending sig; it never trusts a PID cached only in memory.
func signalVM(d labDir, sig syscall.Signal) error {
	pid, err := readPID(d)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if !cmdlineMatches(pid) {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(sig); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return err
	}
	return nil
}
