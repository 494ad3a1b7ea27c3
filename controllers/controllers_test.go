package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice-sync/config"
	"backoffice-sync/events"
	"backoffice-sync/middlewares"
	"backoffice-sync/remote/remotetest"
	"backoffice-sync/service"
	"backoffice-sync/storage"
	"backoffice-sync/utils"
)

const secret = "test-secret"

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	token  string
	fake   *remotetest.Fake
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultSyncConfig()
	cfg.PushDelay = 0
	cfg.RefreshInterval = 0
	fake := remotetest.New()
	b := service.New(storage.NewMemoryStorage(), fake, events.NewBus(), cfg)
	t.Cleanup(b.Close)
	SetBackOffice(b)

	r := gin.New()
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware(secret))
	RegisterRoutes(api)

	token, err := utils.GenerateToken("admin", secret, time.Hour)
	require.NoError(t, err)
	return &apiClient{t: t, router: r, token: token, fake: fake}
}

func (a *apiClient) do(method, path string, body any) (int, map[string]any) {
	a.t.Helper()
	code, raw := a.raw(method, path, body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out))
	}
	return code, out
}

func (a *apiClient) list(path string) []map[string]any {
	a.t.Helper()
	code, raw := a.raw(http.MethodGet, path, nil)
	require.Equal(a.t, http.StatusOK, code)
	var out []map[string]any
	require.NoError(a.t, json.Unmarshal(raw, &out))
	return out
}

func (a *apiClient) raw(method, path string, body any) (int, []byte) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func (a *apiClient) seed() (customerID, productID string) {
	a.t.Helper()
	code, c := a.do(http.MethodPost, "/api/customers", gin.H{"name": "Ana Souza", "email": "ana@x.com"})
	require.Equal(a.t, http.StatusCreated, code)
	code, p := a.do(http.MethodPost, "/api/products", gin.H{"name": "City tour", "price": "50.00", "stock": 10})
	require.Equal(a.t, http.StatusCreated, code)
	return c["id"].(string), p["id"].(string)
}

func TestRequiresToken(t *testing.T) {
	api := newAPI(t)
	api.token = ""

	code, body := api.do(http.MethodGet, "/api/customers", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authorization header required", body["error"])

	api.token = "garbage"
	code, _ = api.do(http.MethodGet, "/api/customers", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOrderLifecycle(t *testing.T) {
	api := newAPI(t)
	customerID, productID := api.seed()
	orders := "/api/customers/" + customerID + "/orders"

	code, order := api.do(http.MethodPost, orders, gin.H{
		"items": []gin.H{{"product_id": productID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, "100", order["total"])
	assert.Equal(t, false, order["total_mismatch"])
	orderID := order["id"].(string)

	code, order = api.do(http.MethodPut, orders+"/"+orderID, gin.H{"total": "90.00"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, order["total_mismatch"])

	code, order = api.do(http.MethodPut, orders+"/"+orderID+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", order["status"])

	code, _ = api.do(http.MethodPut, orders+"/"+orderID+"/status", gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, customer := api.do(http.MethodGet, "/api/customers/"+customerID, nil)
	require.Equal(t, http.StatusOK, code)
	list := customer["orders"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, true, list[0].(map[string]any)["total_mismatch"])

	code, _ = api.raw(http.MethodDelete, orders+"/"+orderID, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = api.raw(http.MethodDelete, orders+"/"+orderID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestValidationErrors(t *testing.T) {
	api := newAPI(t)
	customerID, _ := api.seed()

	code, _ := api.do(http.MethodPost, "/api/customers", gin.H{"email": "no-name@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/products", gin.H{"name": "Bad", "price": "-1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/customers/"+customerID+"/orders", gin.H{
		"items": []gin.H{{"product_id": "missing", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodGet, "/api/customers/nobody", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(http.MethodPost, "/api/shipments", gin.H{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPendingCustomersFilter(t *testing.T) {
	api := newAPI(t)
	customerID, productID := api.seed()
	code, _ := api.do(http.MethodPost, "/api/customers", gin.H{"name": "Bia"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = api.do(http.MethodPost, "/api/customers/"+customerID+"/orders", gin.H{
		"items": []gin.H{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, code)

	assert.Len(t, api.list("/api/customers"), 2)
	pending := api.list("/api/customers?pending=true")
	require.Len(t, pending, 1)
	assert.Equal(t, customerID, pending[0]["id"])
}

func TestShipmentMembers(t *testing.T) {
	api := newAPI(t)
	customerID, _ := api.seed()

	code, shipment := api.do(http.MethodPost, "/api/shipments", gin.H{
		"name":         "June run",
		"customer_ids": []string{customerID},
	})
	require.Equal(t, http.StatusCreated, code)

	members := api.list("/api/shipments/" + shipment["id"].(string) + "/customers")
	require.Len(t, members, 1)
	assert.Equal(t, "Ana Souza", members[0]["name"])
}

func TestSyncEndpoints(t *testing.T) {
	api := newAPI(t)
	customerID, productID := api.seed()
	code, _ := api.do(http.MethodPost, "/api/customers/"+customerID+"/orders", gin.H{
		"items": []gin.H{{"product_id": productID, "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, code)

	assert.Len(t, api.list("/api/sync/outbox"), 3)

	code, drained := api.do(http.MethodPost, "/api/sync/outbox/drain", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, drained["pushed"])
	assert.Empty(t, api.list("/api/sync/outbox"))

	code, res := api.do(http.MethodPost, "/api/sync/orders", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, res["succeeded"])

	code, _ = api.do(http.MethodPost, "/api/sync/refresh", nil)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, 1, api.fake.Count("FetchCustomers"))
}
