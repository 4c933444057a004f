package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bizledger/internal/app"
	"bizledger/internal/clock"
	"bizledger/internal/database"
	"bizledger/internal/middleware"
	"bizledger/internal/model"
	"bizledger/internal/replication"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Kind       string          `json:"kind"`
}

type stubReplication struct {
	pulls   int
	backups []string
}

func (s *stubReplication) Health(context.Context) replication.Health {
	return replication.Health{Enabled: true, Healthy: true}
}

func (s *stubReplication) Pull(context.Context) (bool, error) {
	s.pulls++
	return true, nil
}

func (s *stubReplication) Backup(_ context.Context, name string) error {
	s.backups = append(s.backups, name)
	return nil
}

func (s *stubReplication) Restore(context.Context, string) error {
	return replication.ErrNoSnapshot
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	auth   *middleware.Authenticator
	repl   *stubReplication
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.NewConnection(database.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	services := app.NewServices(db, app.Deps{
		Clock:   clock.NewFakeClock(time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)),
		Company: model.Company{Name: "Test Co", Currency: "EUR"},
	})
	auth := middleware.NewAuthenticator([]byte("handler-secret"))
	authz, err := middleware.NewAuthorizer()
	require.NoError(t, err)
	repl := &stubReplication{}

	s := &testServer{
		t: t,
		router: NewRouter(RouterConfig{
			DB:          db,
			Services:    services,
			Replication: repl,
			Auth:        auth,
			Authz:       authz,
			Gatherer:    prometheus.NewRegistry(),
		}),
		auth:   auth,
		repl:   repl,
		tokens: map[string]string{},
	}
	for _, role := range []string{middleware.RoleAdmin, middleware.RoleClerk, middleware.RoleViewer} {
		token, err := auth.IssueToken(role+"-user", role, time.Hour)
		require.NoError(t, err)
		s.tokens[role] = token
	}
	return s
}

func (s *testServer) do(role, method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := s.tokens[role]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func (s *testServer) create(role, path string, body interface{}) map[string]interface{} {
	s.t.Helper()
	code, env := s.do(role, http.MethodPost, path, body)
	require.Equal(s.t, http.StatusCreated, code, env.Error)
	var out map[string]interface{}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	depot := s.create(middleware.RoleAdmin, "/api/depots", map[string]string{"name": "North"})
	product := s.create(middleware.RoleAdmin, "/api/products", map[string]string{"sku": "SKU-1", "name": "Widget", "price": "120.00"})
	client := s.create(middleware.RoleClerk, "/api/clients", map[string]string{"name": "ACME"})
	assert.Equal(t, "CL-00001", client["code"])

	quote := s.create(middleware.RoleClerk, "/api/documents", map[string]interface{}{
		"type":      "DV",
		"channel":   "sales",
		"depot_id":  depot["id"],
		"client_id": client["id"],
		"lines": []map[string]interface{}{
			{"product_id": product["id"], "quantity": 2},
		},
	})
	assert.Equal(t, "V-DV24-00001", quote["code"])

	id := quote["id"].(string)
	for _, want := range []string{"V-BC24-00001", "V-BL24-00001", "V-FA24-00001"} {
		doc := s.create(middleware.RoleClerk, "/api/documents/"+id+"/transform", nil)
		assert.Equal(t, want, doc["code"])
		id = doc["id"].(string)
	}
	invoiceID := id

	code, env := s.do(middleware.RoleClerk, http.MethodPost, "/api/documents/"+invoiceID+"/transform", nil)
	assert.Equal(t, http.StatusConflict, code, env.Error)

	code, env = s.do(middleware.RoleViewer, http.MethodGet,
		fmt.Sprintf("/api/stock/%s/%s", depot["id"], product["id"]), nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	stock := decode[map[string]interface{}](t, env)
	assert.EqualValues(t, -2, stock["quantity"])

	payment := s.create(middleware.RoleClerk, "/api/documents/"+invoiceID+"/payments",
		map[string]string{"amount": "100", "method": "cash"})
	assert.Equal(t, "100.00", payment["amount"])

	code, env = s.do(middleware.RoleClerk, http.MethodPost, "/api/documents/"+invoiceID+"/payments",
		map[string]string{"amount": "500", "method": "cash"})
	assert.Equal(t, http.StatusBadRequest, code, env.Error)

	code, env = s.do(middleware.RoleViewer, http.MethodGet, "/api/documents/"+invoiceID+"/payments", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	listed := decode[struct {
		Payments []map[string]interface{} `json:"payments"`
		Summary  map[string]string        `json:"summary"`
	}](t, env)
	assert.Len(t, listed.Payments, 1)
	assert.Equal(t, "240.00", listed.Summary["payable"])
	assert.Equal(t, "140.00", listed.Summary["remaining"])
	assert.Equal(t, model.PaymentPartial, listed.Summary["status"])

	code, env = s.do(middleware.RoleManager, http.MethodDelete, "/api/documents/"+invoiceID, nil)
	assert.Equal(t, http.StatusConflict, code, env.Error)
	assert.Equal(t, "invariant", env.Kind)

	ret := s.create(middleware.RoleClerk, "/api/documents/"+invoiceID+"/return", nil)
	assert.Equal(t, "V-BR24-00001", ret["code"])
	code, env = s.do(middleware.RoleClerk, http.MethodPost, "/api/documents/"+invoiceID+"/return", nil)
	assert.Equal(t, http.StatusConflict, code, env.Error)

	code, env = s.do(middleware.RoleViewer, http.MethodGet, "/api/documents?type=FA", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	page := decode[struct {
		Documents []map[string]interface{} `json:"documents"`
		Total     int64                    `json:"total"`
	}](t, env)
	assert.EqualValues(t, 1, page.Total)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(middleware.RoleViewer, http.MethodGet, "/api/documents/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Kind)

	code, _ = s.do(middleware.RoleViewer, http.MethodGet, "/api/documents/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(middleware.RoleClerk, http.MethodPost, "/api/documents", map[string]string{"type": "XX"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(middleware.RoleViewer, http.MethodPost, "/api/depots", map[string]string{"name": "X"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do("", http.MethodGet, "/api/documents", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	depot := s.create(middleware.RoleAdmin, "/api/depots", map[string]string{"name": "North"})
	product := s.create(middleware.RoleAdmin, "/api/products", map[string]string{"sku": "SKU-1", "name": "Widget", "price": "10"})
	code, env = s.do(middleware.RoleAdmin, http.MethodPost, "/api/stock/adjust", map[string]interface{}{
		"depot_id": depot["id"], "product_id": product["id"], "delta": -5, "validate": true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code, env.Error)
	assert.Equal(t, "capacity", env.Kind)
}

func TestSyncEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(middleware.RoleClerk, http.MethodPost, "/api/sync/pull", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(middleware.RoleAdmin, http.MethodPost, "/api/sync/pull", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, 1, s.repl.pulls)

	code, _ = s.do(middleware.RoleAdmin, http.MethodPost, "/api/sync/backups/nightly-2024", nil)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, []string{"nightly-2024"}, s.repl.backups)

	code, _ = s.do(middleware.RoleAdmin, http.MethodPost, "/api/sync/backups/bad%20name", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(middleware.RoleAdmin, http.MethodPost, "/api/sync/backups/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(middleware.RoleAdmin, http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	snap := decode[model.Snapshot](t, env)
	assert.Equal(t, "Test Co", snap.Company.Name)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
