package membership

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/platform/auth"
)

// fakeAuth trusts X-Test-User / X-Test-Role in place of a bearer token.
func fakeAuth(c *gin.Context) {
	c.Set(auth.CtxUserIDKey, c.GetHeader("X-Test-User"))
	c.Set(auth.CtxRoleKey, c.GetHeader("X-Test-Role"))
	c.Next()
}

func newRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t)
	r := gin.New()
	RegisterPublicRoutes(r, svc)
	g := r.Group("/", fakeAuth)
	RegisterRoutes(g, svc)
	return r, svc
}

func do(r http.Handler, method, path, body, userID, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", userID)
	req.Header.Set("X-Test-Role", role)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerRegisterHidesPassword(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodPost, "/users", `{"username":"testuser","email":"test@example.com","password":"testpassword"}`, "", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "testuser", body["username"])
	assert.NotEmpty(t, body["date_of_membership"])
}

func TestHandlerUpdatePermissions(t *testing.T) {
	r, svc := newRouter(t)
	alice := givenUser(t, svc, "alice")
	bob := givenUser(t, svc, "bob")

	w := do(r, http.MethodPatch, "/users/"+alice.ID, `{"email":"a@example.com"}`, alice.ID, auth.RoleMember)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPatch, "/users/"+alice.ID, `{"email":"b@example.com"}`, bob.ID, auth.RoleMember)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPatch, "/users/"+alice.ID, `{"is_active":false}`, alice.ID, auth.RoleMember)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPatch, "/users/"+alice.ID, `{"is_active":false}`, "staff-id", auth.RoleStaff)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/users/"+bob.ID, "", bob.ID, auth.RoleMember)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodDelete, "/users/"+bob.ID, "", "staff-id", auth.RoleStaff)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/users/"+bob.ID, "", alice.ID, auth.RoleMember)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
