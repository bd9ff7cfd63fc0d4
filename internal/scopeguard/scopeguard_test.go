package scopeguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_CommitSkipsRollback(t *testing.T) {
	ran := false
	g := New()
	g.Add(func() error {
		ran = true
		return nil
	})
	g.Commit()
	require.NoError(t, g.Close())
	assert.False(t, ran, "rollback must not run after Commit")
}

func TestGuard_UncommittedRunsRollbacksInReverse(t *testing.T) {
	var order []int
	g := New()
	g.Add(func() error { order = append(order, 1); return nil })
	g.Add(func() error { order = append(order, 2); return nil })
	g.Add(func() error { order = append(order, 3); return nil })

	require.NoError(t, g.Close())
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestGuard_AggregatesRollbackErrors(t *testing.T) {
	errA := errors.New("rollback a failed")
	errB := errors.New("rollback b failed")

	g := New()
	g.Add(func() error { return errA })
	g.Add(func() error { return errB })

	err := g.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rollback a failed")
	assert.Contains(t, err.Error(), "rollback b failed")
}

func TestGuard_CloseIsIdempotentNoOpAfterCommit(t *testing.T) {
	calls := 0
	g := New()
	g.Add(func() error { calls++; return nil })
	g.Commit()
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 0, calls)
}
