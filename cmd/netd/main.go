// Command netd is the privileged network daemon: it must run as root
// (or with CAP_NET_ADMIN) since it is the only process allowed to
// create bridges, TAPs, and NAT rules on the host.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"octolab/internal/logger"
	"octolab/internal/netd"
)

const defaultSocketPath = "/run/octolab/microvm-netd.sock"

func main() {
	ctx, log := logger.PrepareLogger(context.Background())
	defer func() { _ = logger.Sync(ctx) }()

	socketPath := os.Getenv("OCTOLAB_NETD_SOCKET")
	if socketPath == "" {
		socketPath = defaultSocketPath
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		log.Fatal("netd: failed creating socket directory", zap.Error(err))
	}

	srv, err := netd.Listen(socketPath)
	if err != nil {
		log.Fatal("netd: failed to listen", zap.String("socket", socketPath), zap.Error(err))
	}
	defer srv.Close()

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("netd: listening", zap.String("socket", socketPath))
	if err := srv.Serve(sigCtx); err != nil {
		log.Fatal("netd: serve error", zap.Error(err))
	}
	log.Info("netd: shut down")
}
