// Package evidence owns the per-lab evidence directory: the guest
// agent and runtime backends append to it while a lab is alive, and
// Finalize archives it to S3-compatible object storage once the lab
// is tearing down.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dir is the on-disk evidence directory for one lab, rooted under the
// process-wide state directory at <state_dir>/<lab_id>/evidence, the
// same per-lab layout firecracker.labDir carves its own subtree from.
type Dir struct {
	root string
}

// NewDir returns the evidence directory handle for labID under root.
func NewDir(root string, labID uuid.UUID) Dir {
	return Dir{root: filepath.Join(root, labID.String(), "evidence")}
}

func (d Dir) Path() string            { return d.root }
func (d Dir) commandsLogPath() string { return filepath.Join(d.root, "commands.log") }
func (d Dir) commandsTimePath() string { return filepath.Join(d.root, "commands.time") }

// Ensure creates the directory if it does not already exist.
func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.root, 0o700); err != nil {
		return fmt.Errorf("creating evidence dir: %w", err)
	}
	return nil
}

// AppendCommand records one executed command and its timestamp, the
// way the guest agent logs everything it ran inside the microVM so a
// rehearsal can be replayed from the archived evidence alone.
func (d Dir) AppendCommand(cmd string, ranAt time.Time) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	logf, err := os.OpenFile(d.commandsLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening commands.log: %w", err)
	}
	defer logf.Close()
	if _, err := fmt.Fprintf(logf, "%s\n", cmd); err != nil {
		return fmt.Errorf("writing commands.log: %w", err)
	}

	timef, err := os.OpenFile(d.commandsTimePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening commands.time: %w", err)
	}
	defer timef.Close()
	if _, err := fmt.Fprintf(timef, "%s\n", ranAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("writing commands.time: %w", err)
	}
	return nil
}

// ArtifactPath returns the path an artifact with the given relative
// name should be written to inside the evidence directory. It rejects
// names that would escape the directory.
func (d Dir) ArtifactPath(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid evidence artifact name %q", name)
	}
	full := filepath.Join(d.root, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return "", fmt.Errorf("creating evidence artifact dir: %w", err)
	}
	return full, nil
}

// Remove deletes the entire evidence directory once its contents are
// archived, so the per-lab state dir can be fully reclaimed.
func (d Dir) Remove() error {
	return os.RemoveAll(d.root)
}
