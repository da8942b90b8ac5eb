package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/mindwell/internal/config"
	"github.com/iliyamo/mindwell/internal/handler"
	"github.com/iliyamo/mindwell/internal/knowledge"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/repository/memstore"
	"github.com/iliyamo/mindwell/internal/utils"
	"github.com/iliyamo/mindwell/internal/workflow"
)

type api struct {
	t  *testing.T
	e  *echo.Echo
	st *memstore.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memstore.New()
	cfg := config.Config{JWTSecret: "router-test", AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: 4}

	engine := workflow.New(workflow.Stores{
		Users:        st.Users,
		Applications: st.Applications,
		Plans:        st.Plans,
		Reports:      st.Reports,
		Reviews:      st.Reviews,
	}, log)
	graph := knowledge.NewService(st.Knowledge, log)

	e := echo.New()
	d := Deps{JWTSecret: cfg.JWTSecret, Users: st.Users, Log: log}
	RegisterRoutes(e, nil)
	RegisterAuth(e, d, handler.NewAuthHandler(cfg, st.Users, st.Tokens, log))
	RegisterWorkflow(e, d, handler.NewWorkflowHandler(engine, log))
	RegisterKnowledge(e, d, handler.NewKnowledgeHandler(graph, log))
	return &api{t: t, e: e, st: st}
}

func (a *api) do(method, path, token string, body any) (int, map[string]any) {
	a.t.Helper()
	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

type session struct {
	id      uint64
	access  string
	refresh string
}

func sessionFrom(t *testing.T, body map[string]any) session {
	t.Helper()
	user := body["user"].(map[string]any)
	return session{
		id:      uint64(user["id"].(float64)),
		access:  body["access"].(map[string]any)["token"].(string),
		refresh: body["refresh"].(map[string]any)["token"].(string),
	}
}

func (a *api) register(name string) session {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/v1/auth/register", "", echo.Map{
		"username": name, "email": name + "@example.com", "password": "password123",
	})
	require.Equal(a.t, http.StatusCreated, code, body)
	return sessionFrom(a.t, body)
}

func (a *api) admin() session {
	a.t.Helper()
	hash, err := utils.HashPassword("adminpass1", 4)
	require.NoError(a.t, err)
	require.NoError(a.t, a.st.Users.Create(context.Background(), &model.User{
		Username: "root", Email: "root@example.com", PasswordHash: hash, Role: model.RoleAdmin, IsActive: true,
	}))
	code, body := a.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": "root", "password": "adminpass1"})
	require.Equal(a.t, http.StatusOK, code, body)
	return sessionFrom(a.t, body)
}

func TestApplicationApprovalFlow(t *testing.T) {
	a := newAPI(t)
	admin := a.admin()
	alice := a.register("alice")

	code, body := a.do(http.MethodPost, "/v1/therapist/applications", alice.access, echo.Map{
		"full_name": "Alice A", "specialty": "CBT", "license_number": "LIC-1",
	})
	require.Equal(t, http.StatusCreated, code, body)
	appID := uint64(body["id"].(float64))
	assert.Equal(t, "pending", body["status"])

	path := fmt.Sprintf("/v1/admin/applications/%d/status", appID)
	code, _ = a.do(http.MethodPut, path, alice.access, echo.Map{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(http.MethodPut, path, admin.access, echo.Map{"status": "approved"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "approved", body["status"])

	// The same access token now carries therapist capability.
	code, body = a.do(http.MethodGet, "/v1/me", alice.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "therapist", body["role"])

	code, _ = a.do(http.MethodPut, path, admin.access, echo.Map{"status": "rejected"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = a.do(http.MethodPut, path, admin.access, echo.Map{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(http.MethodGet, "/v1/admin/applications?status=approved", admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])
}

func TestTreatmentPlanFlow(t *testing.T) {
	a := newAPI(t)
	admin := a.admin()
	doc := a.register("doc")
	bob := a.register("bob")

	code, _ := a.do(http.MethodPut, fmt.Sprintf("/v1/admin/users/%d/role", doc.id), admin.access, echo.Map{"role": "therapist"})
	require.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, "/v1/disorders", bob.access, echo.Map{"name": "Anxiety"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPost, "/v1/disorders", doc.access, echo.Map{"name": "Anxiety"})
	require.Equal(t, http.StatusCreated, code)

	code, body := a.do(http.MethodPost, "/v1/treatment-plans", doc.access, echo.Map{
		"patient_user_id": bob.id, "disorder_name": "Anxiety", "plan_text": "weekly CBT", "duration_weeks": 8,
	})
	require.Equal(t, http.StatusCreated, code, body)
	planID := uint64(body["id"].(float64))
	assert.Equal(t, "Active", body["status"])

	code, body = a.do(http.MethodGet, "/v1/treatment-plans", bob.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	path := fmt.Sprintf("/v1/treatment-plans/%d/status", planID)
	code, _ = a.do(http.MethodPut, path, bob.access, echo.Map{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, code)
	code, body = a.do(http.MethodPut, path, doc.access, echo.Map{"status": "completed"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Completed", body["status"])
	code, _ = a.do(http.MethodPut, path, doc.access, echo.Map{"status": "canceled"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.do(http.MethodGet, "/v1/treatment-plans/abc", doc.access, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodGet, "/v1/treatment-plans/999", doc.access, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestKnowledgeRoutes(t *testing.T) {
	a := newAPI(t)
	admin := a.admin()

	code, _ := a.do(http.MethodGet, "/v1/disorders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	for _, p := range []struct{ path, name string }{
		{"/v1/disorders", "Panic Disorder"},
		{"/v1/symptoms", "Sweating"},
		{"/v1/symptoms", "Panic attacks"},
	} {
		code, body := a.do(http.MethodPost, p.path, admin.access, echo.Map{"name": p.name})
		require.Equal(t, http.StatusCreated, code, body)
	}
	for _, sym := range []string{"Sweating", "Panic attacks"} {
		code, body := a.do(http.MethodPost, "/v1/disorders/Panic%20Disorder/symptoms", admin.access, echo.Map{"symptom": sym})
		require.Equal(t, http.StatusCreated, code, body)
	}

	code, body := a.do(http.MethodGet, "/v1/symptoms?disorder=Panic%20Disorder", admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	code, body = a.do(http.MethodPost, "/v1/diagnose", admin.access, echo.Map{"symptoms": []string{"Sweating", "Fever"}})
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 50, items[0].(map[string]any)["score"])

	code, _ = a.do(http.MethodDelete, "/v1/disorders/Panic%20Disorder/symptoms/Sweating", admin.access, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodDelete, "/v1/disorders/Panic%20Disorder", admin.access, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, body = a.do(http.MethodGet, "/v1/symptoms?disorder=Panic%20Disorder", admin.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["total"])
}

func TestProblemReportRoutes(t *testing.T) {
	a := newAPI(t)
	admin := a.admin()
	bob := a.register("bob")

	code, body := a.do(http.MethodPost, "/v1/problems", bob.access, echo.Map{
		"title": "Login broken", "description": "cannot log in", "category": "Technical",
	})
	require.Equal(t, http.StatusCreated, code, body)
	id := uint64(body["id"].(float64))

	code, _ = a.do(http.MethodGet, "/v1/problems", bob.access, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, body = a.do(http.MethodGet, "/v1/problems/mine", bob.access, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	path := fmt.Sprintf("/v1/problems/%d/status", id)
	code, _ = a.do(http.MethodPut, path, admin.access, echo.Map{"status": "resolved"})
	assert.Equal(t, http.StatusConflict, code)
	code, body = a.do(http.MethodPut, path, admin.access, echo.Map{"status": "in_progress"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "in_progress", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	a := newAPI(t)
	admin := a.admin()
	bob := a.register("bob")

	code, _ := a.do(http.MethodPost, "/v1/auth/register", "", echo.Map{
		"username": "bob", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, code)
	code, body := a.do(http.MethodPost, "/v1/auth/register", "", echo.Map{
		"username": "carol", "email": "carol@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "at least 8")
	code, _ = a.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": "bob", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = a.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": bob.refresh})
	require.Equal(t, http.StatusOK, code)
	rotated := sessionFrom(t, body)
	code, _ = a.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": bob.refresh})
	assert.Equal(t, http.StatusUnauthorized, code, "a rotated refresh token is single-use")

	code, _ = a.do(http.MethodPost, "/v1/auth/logout", rotated.access, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": rotated.refresh})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPut, fmt.Sprintf("/v1/admin/users/%d/active", bob.id), admin.access, echo.Map{"is_active": false})
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/v1/me", bob.access, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPost, "/v1/auth/login", "", echo.Map{"username": "bob", "password": "password123"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPut, fmt.Sprintf("/v1/admin/users/%d/active", admin.id), admin.access, echo.Map{"is_active": false})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
