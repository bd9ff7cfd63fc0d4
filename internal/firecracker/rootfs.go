package firecracker

import (
	"fmt"
	"io"
	"os"
)

// prepareRootfsOverlay copies the shared base rootfs image into the
// lab's own state dir so writes inside the guest never touch the
// shared base. A real deployment would use a sparse qcow2/dm-snapshot
// copy-on-write overlay instead of a flat copy; this keeps the same
// contract (an independent, writable image per lab) without depending
// on a particular host storage backend.
func prepareRootfsOverlay(basePath, overlayPath string) error {
	src, err := os.Open(basePath)
	if err != nil {
		return fmt.Errorf("opening base rootfs: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(overlayPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating rootfs overlay: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying rootfs overlay: %w", err)
	}
	return nil
}
