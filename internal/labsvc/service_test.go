package labsvc

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"octolab/internal/apperr"
	"octolab/internal/ent"
	"octolab/internal/ent/enttest"
	"octolab/internal/enum"
	"octolab/internal/runtime"
)

func init() {
	runtime.Register(enum.RuntimeCompose, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return &runtime.Mock{
			NameFunc: func() enum.RuntimeType { return enum.RuntimeCompose },
			ProvisionLabFunc: func(ctx context.Context, lab *ent.Lab) error {
				lab.ConnectionURL = "vnc://127.0.0.1:20001"
				lab.RuntimeMeta = map[string]interface{}{"compose_project": "octolab_" + lab.ID.String()}
				return nil
			},
		}, nil
	})
}

func newTestService(t *testing.T) (*Service, *ent.Client) {
	t.Helper()
	client := enttest.Open(t, "sqlite3", "file:"+uuid.NewString()+"?mode=memory&cache=shared&_fk=1")
	t.Cleanup(func() { client.Close() })

	sel := runtime.NewSelector(enum.RuntimeCompose, nil)
	return New(client, sel, nil, ""), client
}

func seedRecipe(t *testing.T, client *ent.Client, schema map[string]interface{}) *ent.Recipe {
	t.Helper()
	builder := client.Recipe.Create().
		SetName("log4shell-rehearsal").
		SetTargetSoftware("log4j").
		SetBlueprint(map[string]interface{}{"compose_yaml": "services: {}\n"})
	if schema != nil {
		builder = builder.SetIntentSchema(schema)
	}
	r, err := builder.Save(context.Background())
	require.NoError(t, err)
	return r
}

func seedUser(t *testing.T, client *ent.Client) *ent.User {
	t.Helper()
	u, err := client.User.Create().
		SetEmail("operator@example.com").
		SetPasswordHash("x").
		Save(context.Background())
	require.NoError(t, err)
	return u
}

func TestCreateLab_HappyPathReachesReady(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	owner := seedUser(t, client)
	recipe := seedRecipe(t, client, nil)

	lab, err := svc.CreateLab(ctx, owner.ID, recipe.ID, map[string]interface{}{"difficulty": "easy"})
	require.NoError(t, err)
	assert.Equal(t, enum.LabStatusReady, lab.Status)
	assert.NotEmpty(t, lab.ConnectionURL)
	assert.Equal(t, enum.RuntimeCompose, lab.Runtime)
}

func TestCreateLab_RejectsIntentViolatingRecipeSchema(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	owner := seedUser(t, client)
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"difficulty"},
		"properties": map[string]interface{}{
			"difficulty": map[string]interface{}{"type": "string"},
		},
	}
	recipe := seedRecipe(t, client, schema)

	_, err := svc.CreateLab(ctx, owner.ID, recipe.ID, map[string]interface{}{})
	require.Error(t, err)
}

func TestCreateLab_RejectsOversizedIntent(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	owner := seedUser(t, client)
	recipe := seedRecipe(t, client, nil)

	huge := make(map[string]interface{})
	huge["payload"] = string(make([]byte, maxIntentBytes+1))

	_, err := svc.CreateLab(ctx, owner.ID, recipe.ID, huge)
	require.Error(t, err)
}

func TestGetLab_TenantIsolationReturnsNotFoundNotForbidden(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	owner := seedUser(t, client)
	other, err := client.User.Create().
		SetEmail("other@example.com").
		SetPasswordHash("x").
		Save(ctx)
	require.NoError(t, err)
	recipe := seedRecipe(t, client, nil)

	lab, err := svc.CreateLab(ctx, owner.ID, recipe.ID, map[string]interface{}{})
	require.NoError(t, err)

	_, err = svc.GetLab(ctx, other.ID, lab.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	got, err := svc.GetLab(ctx, owner.ID, lab.ID, false)
	require.NoError(t, err)
	assert.Equal(t, lab.ID, got.ID)

	gotAdmin, err := svc.GetLab(ctx, other.ID, lab.ID, true)
	require.NoError(t, err)
	assert.Equal(t, lab.ID, gotAdmin.ID)
}

func TestTerminateLab_IsIdempotent(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	owner := seedUser(t, client)
	recipe := seedRecipe(t, client, nil)
	lab, err := svc.CreateLab(ctx, owner.ID, recipe.ID, map[string]interface{}{})
	require.NoError(t, err)

	require.NoError(t, svc.TerminateLab(ctx, owner.ID, lab.ID))
	require.NoError(t, svc.TerminateLab(ctx, owner.ID, lab.ID))

	got, err := svc.GetLab(ctx, owner.ID, lab.ID, false)
	require.NoError(t, err)
	assert.Equal(t, enum.LabStatusEnding, got.Status)
}

func TestTerminateLab_UnknownLabIsNotFound(t *testing.T) {
	svc, client := newTestService(t)
	owner := seedUser(t, client)
	err := svc.TerminateLab(context.Background(), owner.ID, uuid.New())
	require.Error(t, err)
}

func TestConnect_RefusesBeforeReady(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	owner := seedUser(t, client)
	recipe := seedRecipe(t, client, nil)
	lab, err := client.Lab.Create().
		SetOwnerID(owner.ID).
		SetRecipeID(recipe.ID).
		SetRuntime(enum.RuntimeCompose).
		Save(ctx)
	require.NoError(t, err)

	_, err = svc.Connect(ctx, owner.ID, lab.ID)
	require.Error(t, err)
}
