package teardown

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/etcd/client/v3/concurrency"

	"octolab/internal/etcd"
)

const (
	lockPrefix  = "octolab/teardown/lock/"
	sessionTTLs = 15
)

// Coordinator reduces claim-query contention across replicas by
// wrapping per-lab teardown in an etcd mutex. It is an optimization,
// not a correctness requirement: with Coordinator nil, or after a
// missed or failed lock acquisition, the compare-and-set claim in
// tryClaim still ensures a single worker tears each lab down.
type Coordinator struct {
	client *etcd.Client
}

// NewCoordinator wraps an etcd client for teardown lock coordination.
// Passing a nil client disables coordination entirely.
func NewCoordinator(client *etcd.Client) *Coordinator {
	if client == nil {
		return nil
	}
	return &Coordinator{client: client}
}

// TryLock attempts to acquire the distributed lock for labID without
// blocking. locked is false if another replica already holds it.
func (c *Coordinator) TryLock(ctx context.Context, labID uuid.UUID) (locked bool, unlock func(), err error) {
	session, err := c.client.NewSession(ctx, sessionTTLs)
	if err != nil {
		return false, nil, fmt.Errorf("opening etcd session: %w", err)
	}

	mu := c.client.NewMutex(session, lockPrefix+labID.String())
	if err := mu.TryLock(ctx); err != nil {
		_ = session.Close()
		if err == concurrency.ErrLocked {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("acquiring teardown lock: %w", err)
	}

	return true, func() {
		_ = mu.Unlock(context.Background())
		_ = session.Close()
	}, nil
}
