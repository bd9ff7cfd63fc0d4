// Package scopeguard provides a small helper for the "allocate several
// external resources, roll all of them back unless the whole scope
// commits" pattern that labsvc.CreateLab needs: a failed lab creation must not leave a netd bridge, a
// DNAT rule, or a provisioned VM dangling with no lab row pointing at
// it.
package scopeguard

import (
	"github.com/hashicorp/go-multierror"
)

// Guard accumulates rollback functions as resources are acquired and
// runs them in reverse order unless Commit is called. It is not safe
// for concurrent use; each call site should own one Guard for the
// duration of its own scope.
type Guard struct {
	rollbacks []func() error
	committed bool
}

// New returns an empty Guard.
func New() *Guard {
	return &Guard{}
}

// Add registers a rollback to run if the Guard is never committed.
// Call this immediately after an allocation succeeds, before the next
// step that might fail, so every already-acquired resource has a
// registered undo.
func (g *Guard) Add(rollback func() error) {
	g.rollbacks = append(g.rollbacks, rollback)
}

// Commit marks the scope as successful. Close becomes a no-op after this.
func (g *Guard) Commit() {
	g.committed = true
}

// Close runs every registered rollback, most-recently-added first, if
// Commit was never called. It aggregates individual rollback failures
// with go-multierror rather than stopping at the first one, since
// skipping a later rollback because an earlier one failed would leak
// whatever that later step acquired.
//
// Intended for `defer g.Close()` immediately after `g := scopeguard.New()`.
func (g *Guard) Close() error {
	if g.committed {
		return nil
	}
	var result *multierror.Error
	for i := len(g.rollbacks) - 1; i >= 0; i-- {
		if err := g.rollbacks[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
