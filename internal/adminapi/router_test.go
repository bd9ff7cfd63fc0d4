package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octolab/internal/auth"
	"octolab/internal/ent"
	"octolab/internal/ent/enttest"
	"octolab/internal/enum"
	"octolab/internal/labsvc"
	"octolab/internal/runtime"
)

func init() {
	runtime.Register(enum.RuntimeCompose, func(ctx context.Context, cfg map[string]interface{}) (runtime.Runtime, error) {
		return &runtime.Mock{
			NameFunc: func() enum.RuntimeType { return enum.RuntimeCompose },
			ProvisionLabFunc: func(ctx context.Context, lab *ent.Lab) error {
				lab.ConnectionURL = "vnc://127.0.0.1:20002"
				return nil
			},
		}, nil
	})
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte("unverified-in-this-layer"))
	require.NoError(t, err)
	return s
}

func newTestAPI(t *testing.T) (*API, *ent.Client) {
	t.Helper()
	client := enttest.Open(t, "sqlite3", "file:adminapi?mode=memory&cache=shared&_fk=1")
	t.Cleanup(func() { client.Close() })

	sel := runtime.NewSelector(enum.RuntimeCompose, nil)
	svc := labsvc.New(client, sel, nil, "")
	api := New(Config{
		Labs:           svc,
		Selector:       sel,
		DefaultRuntime: enum.RuntimeCompose,
		Authenticator:  auth.NewJWTAuthenticator(),
		Admins:         auth.NewAdminAllowlist([]string{"admin@example.com"}),
	})
	return api, client
}

func TestHealthEndpointIsUnauthenticated(t *testing.T) {
	api, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateLab_RequiresAuthentication(t *testing.T) {
	api, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/labs", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateLabAndGetLab_RoundTrip(t *testing.T) {
	api, client := newTestAPI(t)
	ctx := context.Background()

	owner, err := client.User.Create().SetEmail("owner@example.com").SetPasswordHash("x").Save(ctx)
	require.NoError(t, err)
	recipe, err := client.Recipe.Create().
		SetName("rehearsal").
		SetTargetSoftware("log4j").
		SetBlueprint(map[string]interface{}{}).
		Save(ctx)
	require.NoError(t, err)

	token := testToken(t, owner.ID.String())
	router := api.Router()

	body, _ := json.Marshal(createLabRequest{RecipeID: recipe.ID})
	req := httptest.NewRequest(http.MethodPost, "/labs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created ent.Lab
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	getReq := httptest.NewRequest(http.MethodGet, "/labs/"+created.ID.String(), nil)
	getReq.Header.Set("Authorization", "Bearer "+token)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestAdminRoute_RejectsNonAdminCaller(t *testing.T) {
	api, client := newTestAPI(t)
	owner, err := client.User.Create().SetEmail("nobody@example.com").SetPasswordHash("x").Save(context.Background())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/runtime", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t, owner.ID.String()))
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
