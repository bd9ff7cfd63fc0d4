package runtime

import (
	"context"
	"fmt"
	"sync"

	"octolab/internal/enum"
)

// Creator builds a Runtime instance from its typed configuration.
type Creator func(ctx context.Context, cfg map[string]interface{}) (Runtime, error)

var (
	creators   = make(map[enum.RuntimeType]Creator)
	registryMu sync.RWMutex
)

// Register associates a Creator with a runtime type. Called from each
// backend package's init(), so importing octolab/internal/composert and
// octolab/internal/firecracker for side effects is what makes them
// selectable; kubernetes is intentionally never registered (see
// DESIGN.md Open Questions).
func Register(t enum.RuntimeType, creator Creator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	creators[t] = creator
}

// Create dispatches to the registered Creator for t.
func Create(ctx context.Context, t enum.RuntimeType, cfg map[string]interface{}) (Runtime, error) {
	registryMu.RLock()
	creator, ok := creators[t]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no runtime registered for type %q", t)
	}
	return creator(ctx, cfg)
}

// Registered reports whether a runtime type has a registered Creator,
// used by the selector to fail fast on an unknown override.
func Registered(t enum.RuntimeType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := creators[t]
	return ok
}
