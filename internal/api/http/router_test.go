package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/iam-service/internal/api/http/handlers"
	"github.com/spec-kit/iam-service/internal/auth"
	"github.com/spec-kit/iam-service/internal/config"
	"github.com/spec-kit/iam-service/internal/domain"
	"github.com/spec-kit/iam-service/internal/gateway"
	"github.com/spec-kit/iam-service/internal/observability"
	"github.com/spec-kit/iam-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, requireAuth bool) *testServer {
	t.Helper()
	gw := gateway.NewMemory(auth.NewPasswordHasher(4))
	gw.SeedPermissions(domain.Permission{ID: "users:read", Name: "users:read", Resource: "users", Action: "read"})
	gw.SeedRole(domain.Role{ID: "sys", Name: "Super Admin", IsSystem: true})
	gw.SeedRole(domain.Role{ID: "viewer", Name: "Viewer"})
	gw.SeedUser(domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Admin", Roles: []string{"Viewer"}})
	gw.SeedUser(domain.User{ID: "u2", Username: "bob", Email: "bob@example.com", FirstName: "Bob", LastName: "Builder"})

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	iam := service.NewIAMService(config.IAMConfig{DefaultPageSize: 10, MaxPageSize: 100}, service.Dependencies{
		Gateway: gw,
		Metrics: metrics,
		Logger:  logger,
	})
	require.NoError(t, iam.Load(context.Background()))

	tokens := auth.NewTokenManager("test-secret", 5)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("iam-service", "test", func() bool { return true }, nil).WithMetrics(metrics),
		Users:          handlers.NewUsersHandler(iam),
		Roles:          handlers.NewRolesHandler(iam),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, requireAuth),
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestListUsersPaginationAndSearch(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/api/iam/users?page=2&pageSize=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["page"])
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodGet, "/api/iam/users?page=3&pageSize=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])
	assert.EqualValues(t, 2, body["total"])

	status, body = s.do(t, http.MethodGet, "/api/iam/users?search=ADM", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = s.do(t, http.MethodGet, "/api/iam/users?page=zero", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestCreateUserThenAssignRole(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPost, "/api/iam/users", map[string]any{
		"username": "carol", "email": "carol@example.com", "firstName": "Carol", "lastName": "C",
		"password": "pw", "roles": []string{"Viewer"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	id := data["id"].(string)
	assert.Equal(t, []any{"Viewer"}, data["roles"])

	status, body = s.do(t, http.MethodPost, "/api/iam/roles/viewer/users", map[string]any{"userIds": []string{id}})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["userCount"])

	status, body = s.do(t, http.MethodGet, "/api/iam/users/u1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"].(map[string]any)["roles"])
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPost, "/api/iam/users", map[string]any{
		"username": "dan", "email": "dan@example.com", "firstName": "Dan", "lastName": "D", "password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestSystemRoleAndCascadeRules(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPut, "/api/iam/roles/sys", map[string]any{"name": "Root"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "POLICY_VIOLATION", errorCode(body))

	status, body = s.do(t, http.MethodDelete, "/api/iam/roles/viewer", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, _ = s.do(t, http.MethodDelete, "/api/iam/roles/viewer?cascade=true", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = s.do(t, http.MethodGet, "/api/iam/roles/viewer", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestUpdateUserWithEmptyRoles(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPut, "/api/iam/users/u1", map[string]any{"roles": []string{}, "status": "suspended"})
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Empty(t, data["roles"])
	assert.Equal(t, "suspended", data["status"])

	status, body = s.do(t, http.MethodGet, "/api/iam/roles/viewer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["data"].(map[string]any)["userCount"])
}

func TestRolesAndPermissionsListing(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodPost, "/api/iam/roles", map[string]any{
		"name": "Reader", "description": "Read only", "permissions": []string{"users:read"},
	})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.do(t, http.MethodGet, "/api/iam/roles?search=read", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["total"])

	status, body = s.do(t, http.MethodGet, "/api/iam/permissions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true)

	status, body := s.do(t, http.MethodGet, "/api/iam/users", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	token, _, err := s.tokens.GenerateToken("operator-1", "Ops")
	require.NoError(t, err)
	status, _ = s.do(t, http.MethodGet, "/api/iam/users", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, body := s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = s.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	assert.Equal(t, int64(1), s.metrics.RequestCount("/health/ready", http.MethodGet, http.StatusOK))
}

func TestRequestIDIsEchoedOrMinted(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get(requestIDHeader))

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/api/iam/users/missing", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Len(t, resp.Header.Get(requestIDHeader), 36)
}

func TestMetricsEndpointReportsCommands(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	status, _ := s.do(t, http.MethodDelete, "/api/iam/roles/sys", nil)
	require.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(t, http.MethodPost, "/api/iam/roles/viewer/users", map[string]any{"userIds": []string{"u1", "u2"}})
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodGet, "/health/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]any)
	commands, _ := data["commands"].([]any)
	require.Len(t, commands, 2)
	first, _ := commands[0].(map[string]any)
	second, _ := commands[1].(map[string]any)
	assert.Equal(t, "assign_role_to_users", first["kind"])
	assert.Equal(t, "committed", first["state"])
	assert.Equal(t, "delete_role", second["kind"])
	assert.Equal(t, "rolled_back", second["state"])
	assert.EqualValues(t, 1, second["count"])
}
