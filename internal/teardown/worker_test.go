package teardown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octolab/internal/ent"
	"octolab/internal/ent/enttest"
	"octolab/internal/enum"
	"octolab/internal/runtime"
)

func newTestClient(t *testing.T) *ent.Client {
	t.Helper()
	client := enttest.Open(t, "sqlite3", "file:teardown-"+t.Name()+"?mode=memory&cache=shared&_fk=1&_busy_timeout=5000")
	t.Cleanup(func() { client.Close() })
	return client
}

func seedEndingLab(t *testing.T, client *ent.Client) *ent.Lab {
	t.Helper()
	ctx := context.Background()

	owner, err := client.User.Create().SetEmail("operator@example.com").SetPasswordHash("x").Save(ctx)
	require.NoError(t, err)
	recipe, err := client.Recipe.Create().
		SetName("log4shell-rehearsal").
		SetTargetSoftware("log4j").
		SetBlueprint(map[string]interface{}{}).
		Save(ctx)
	require.NoError(t, err)
	lab, err := client.Lab.Create().
		SetOwnerID(owner.ID).
		SetRecipeID(recipe.ID).
		SetRuntime(enum.RuntimeCompose).
		SetStatus(enum.LabStatusEnding).
		Save(ctx)
	require.NoError(t, err)
	return lab
}

func TestTick_DestroySuccessTransitionsToFinished(t *testing.T) {
	client := newTestClient(t)
	var destroyed atomic.Int32
	runtime.Register(enum.RuntimeCompose, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return &runtime.Mock{
			DestroyLabFunc: func(ctx context.Context, lab *ent.Lab) error {
				destroyed.Add(1)
				return nil
			},
		}, nil
	})

	lab := seedEndingLab(t, client)
	w := New(Config{Client: client, TickInterval: time.Hour, PerLabTimeout: time.Second})

	w.tick(context.Background())

	assert.Equal(t, int32(1), destroyed.Load())
	reloaded, err := client.Lab.Get(context.Background(), lab.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.LabStatusFinished, reloaded.Status)
}

func TestTick_DestroyFailureTransitionsToFailedWithReason(t *testing.T) {
	client := newTestClient(t)
	runtime.Register(enum.RuntimeCompose, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return &runtime.Mock{
			DestroyLabFunc: func(ctx context.Context, lab *ent.Lab) error {
				return assert.AnError
			},
		}, nil
	})

	lab := seedEndingLab(t, client)
	w := New(Config{Client: client, TickInterval: time.Hour, PerLabTimeout: time.Second})

	w.tick(context.Background())

	reloaded, err := client.Lab.Get(context.Background(), lab.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.LabStatusFailed, reloaded.Status)
	assert.Equal(t, "teardown_error", reloaded.RuntimeMeta["teardown_failure_reason"])
}

func TestTick_NoEndingLabsIsANoop(t *testing.T) {
	client := newTestClient(t)
	w := New(Config{Client: client, TickInterval: time.Hour, PerLabTimeout: time.Second})
	w.tick(context.Background())
}

func TestStartStop_ShutsDownCleanly(t *testing.T) {
	client := newTestClient(t)
	runtime.Register(enum.RuntimeCompose, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return &runtime.Mock{}, nil
	})

	w := New(Config{Client: client, TickInterval: 10 * time.Millisecond, PerLabTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Stop()
}

func TestFinishLab_IsIdempotentUnderConcurrentCompletion(t *testing.T) {
	client := newTestClient(t)
	lab := seedEndingLab(t, client)
	w := New(Config{Client: client})

	w.finishLab(context.Background(), lab)
	w.finishLab(context.Background(), lab) // second call affects zero rows, must not error

	reloaded, err := client.Lab.Get(context.Background(), lab.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.LabStatusFinished, reloaded.Status)
}
