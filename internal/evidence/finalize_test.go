package evidence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octolab/internal/ent"
	"octolab/internal/ent/enttest"
	"octolab/internal/enum"
)

func seedLab(t *testing.T, client *ent.Client) *ent.Lab {
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

func TestFinalize_NoObjectStoreMarksUnavailable(t *testing.T) {
	client := enttest.Open(t, "sqlite3", "file:evidence-finalize-unavailable?mode=memory&cache=shared&_fk=1")
	t.Cleanup(func() { client.Close() })

	lab := seedLab(t, client)
	stateRoot := t.TempDir()

	f := NewFinalizer(client, nil, stateRoot)
	f.Finalize(context.Background(), lab)

	reloaded, err := client.Lab.Get(context.Background(), lab.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EvidenceStateUnavailable, reloaded.EvidenceState)
	assert.NotNil(t, reloaded.EvidenceFinalizedAt)
}

func TestFinalize_UnusableDirMarksUnavailable(t *testing.T) {
	client := enttest.Open(t, "sqlite3", "file:evidence-finalize-unusable?mode=memory&cache=shared&_fk=1")
	t.Cleanup(func() { client.Close() })

	lab := seedLab(t, client)
	stateRoot := t.TempDir()

	// Occupy the would-be lab directory with a file so MkdirAll fails.
	require.NoError(t, os.WriteFile(filepath.Join(stateRoot, lab.ID.String()), []byte("x"), 0o600))

	f := NewFinalizer(client, &ObjectStore{}, stateRoot)
	f.Finalize(context.Background(), lab)

	reloaded, err := client.Lab.Get(context.Background(), lab.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.EvidenceStateUnavailable, reloaded.EvidenceState)
}
