package firecracker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// labDir is the per-lab on-disk layout described in spec.md §6:
// <state_dir>/<lab_id>/{firecracker.sock, firecracker.log,
// rootfs.overlay.ext4, bundle.tar.gz, evidence/, pid}.
type labDir struct {
	root string
}

func newLabDir(stateDir string, labID uuid.UUID) labDir {
	return labDir{root: filepath.Join(stateDir, labID.String())}
}

func (d labDir) ensure() error {
	if err := os.MkdirAll(d.root, 0o700); err != nil {
		return fmt.Errorf("creating lab state dir: %w", err)
	}
	if err := os.MkdirAll(d.evidenceDir(), 0o700); err != nil {
		return fmt.Errorf("creating evidence dir: %w", err)
	}
	return nil
}

func (d labDir) socketPath() string    { return filepath.Join(d.root, "firecracker.sock") }
func (d labDir) logPath() string       { return filepath.Join(d.root, "firecracker.log") }
func (d labDir) rootfsPath() string    { return filepath.Join(d.root, "rootfs.overlay.ext4") }
func (d labDir) bundlePath() string    { return filepath.Join(d.root, "bundle.tar.gz") }
func (d labDir) evidenceDir() string   { return filepath.Join(d.root, "evidence") }
func (d labDir) pidPath() string       { return filepath.Join(d.root, "pid") }
func (d labDir) tokenPath() string     { return filepath.Join(d.root, "token") }
func (d labDir) jailerChrootDir() string {
	return filepath.Join(d.root, "jailer-root")
}

func (d labDir) remove() error {
	return os.RemoveAll(d.root)
}
