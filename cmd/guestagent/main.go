// Command guestagent is cross-compiled into the lab rootfs image; it is
// not run by the control plane process itself.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"octolab/internal/guestagent"
)

func main() {
	token, err := bootToken()
	if err != nil {
		log.Fatalf("guestagent: %v", err)
	}

	srv, err := guestagent.Listen(guestagent.DefaultPort, token)
	if err != nil {
		log.Fatalf("guestagent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("guestagent: serve: %v", err)
	}
}

// bootToken reads the per-VM secret token baked into the kernel cmdline
// by the host (octolab.token=<value>) once at startup, and never logs it.
func bootToken() (string, error) {
	raw, err := os.ReadFile("/proc/cmdline")
	if err != nil {
		return "", err
	}
	for _, field := range strings.Fields(string(raw)) {
		if v, ok := strings.CutPrefix(field, "octolab.token="); ok {
			return v, nil
		}
	}
	return "", errNoToken
}

var errNoToken = errors.New("octolab.token not found on kernel cmdline")
