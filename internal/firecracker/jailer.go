package firecracker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// launchJailed starts firecracker under the jailer binary, chrooted
// into d.jailerChrootDir(). Production builds always go through this
// path; dev.unsafe_allow_no_jailer (gated to OCTOLAB_ENV=development in
// configFromMap) is the only way to bypass it.
func launchJailed(ctx context.Context, cfg Config, d labDir, labIDShort string) (*exec.Cmd, error) {
	if err := os.MkdirAll(d.jailerChrootDir(), 0o700); err != nil {
		return nil, fmt.Errorf("creating jailer chroot dir: %w", err)
	}

	args := []string{
		"--id", labIDShort,
		"--exec-file", cfg.FirecrackerPath,
		"--chroot-base-dir", d.jailerChrootDir(),
		"--uid", "0",
		"--gid", "0",
		"--",
		"--api-sock", "/firecracker.sock",
	}

	cmd := exec.CommandContext(ctx, cfg.JailerPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting jailer: %w", err)
	}
	return cmd, nil
}

// launchUnjailed starts firecracker directly against the lab's own
// state directory, with no chroot or privilege drop. Only reachable
// when Config.UnsafeNoJailer is set, which configFromMap already
// refuses outside OCTOLAB_ENV=development.
func launchUnjailed(ctx context.Context, cfg Config, d labDir) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, cfg.FirecrackerPath, "--api-sock", d.socketPath())
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting firecracker: %w", err)
	}
	return cmd, nil
}
