package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/entity"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/events"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/gateway"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/idempotency"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/repository"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/service"
	"github.com/shubhamyadav8901/ecom-order-mangaement-system/internal/sharding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv      *httptest.Server
	ledger   *repository.MemoryInventoryLedger
	payments *service.PaymentService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	users := repository.NewMemoryUserRepository()
	auth := service.NewAuthService(users, "api-test-secret", time.Hour)
	_, err := auth.Register(ctx, "user@example.com", "password", entity.RoleCustomer)
	require.NoError(t, err)
	_, err = auth.Register(ctx, "other@example.com", "password", entity.RoleCustomer)
	require.NoError(t, err)
	_, err = auth.Register(ctx, "admin@example.com", "password", entity.RoleAdmin)
	require.NoError(t, err)

	products := repository.NewMemoryProductRepository()
	_, err = products.Create(ctx, &entity.Product{ID: 1, Name: "Widget", Price: decimal.RequireFromString("10.00"), Status: entity.ProductActive})
	require.NoError(t, err)

	ledger := repository.NewMemoryInventoryLedger(sharding.NewShardRouter(4))
	require.NoError(t, ledger.SetStock(ctx, 1, 3))

	store := idempotency.NewMemoryStore()
	publisher := events.NewRecorder()
	inventory := service.NewInventoryService(ledger, products)
	orders := service.NewOrderService(repository.NewMemoryOrderRepository(), products, inventory, publisher, store, time.Hour)
	gw := gateway.NewSimulatedGateway(gateway.SimulatedConfig{Latency: time.Millisecond})
	payments := service.NewPaymentService(repository.NewMemoryPaymentRepository(), orders, gw, publisher, store, time.Second)
	orders.SetPaymentCoordinator(payments)
	t.Cleanup(payments.Close)

	e := NewRouter(RouterConfig{
		JWTSecret:      "api-test-secret",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Logger:         zerolog.Nop(),
	}, Handlers{
		Auth:      NewAuthHandler(auth),
		Products:  NewProductHandler(service.NewProductService(products, store)),
		Inventory: NewInventoryHandler(inventory),
		Orders:    NewOrderHandler(orders),
		Payments:  NewPaymentHandler(payments),
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, ledger: ledger, payments: payments}
}

func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"password"}`, nil)
	require.Equal(t, http.StatusOK, status, body)

	var resp loginResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	return resp.AccessToken
}

func (ts *testServer) do(t *testing.T, method, path, token, body string, header map[string]string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

// orderStatus polls an order without failing the test, for use inside
// Eventually.
func (ts *testServer) orderStatus(path, token string) entity.OrderStatus {
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var order entity.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return ""
	}
	return order.Status
}

func decodeOrder(t *testing.T, body string) entity.Order {
	t.Helper()
	var order entity.Order
	require.NoError(t, json.Unmarshal([]byte(body), &order), body)
	return order
}

func decodeError(t *testing.T, body string) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp), body)
	return resp
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)

	status, _ = ts.do(t, http.MethodGet, "/metrics", "", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodPost, "/auth/login", "", `{"email":"user@example.com","password":"nope"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, body).Error)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/orders/my-orders", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	resp := decodeError(t, body)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "/orders/my-orders", resp.Path)

	status, _ = ts.do(t, http.MethodGet, "/orders/my-orders", "not-a-jwt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "user@example.com")
	idem := map[string]string{"Idempotency-Key": "checkout-1"}

	status, body := ts.do(t, http.MethodPost, "/orders", token, `{"items":[{"productId":1,"quantity":2}]}`, idem)
	require.Equal(t, http.StatusCreated, status, body)
	order := decodeOrder(t, body)
	assert.Equal(t, entity.StatusPlaced, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20")))

	status, body = ts.do(t, http.MethodPost, "/orders", token, `{"items":[{"productId":1,"quantity":2}]}`, idem)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, order.ID, decodeOrder(t, body).ID, "same key replays the order")

	path := "/orders/" + jsonID(order.ID)
	status, body = ts.do(t, http.MethodGet, path, token, "", nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = ts.do(t, http.MethodPost, path+"/cancel", token, "", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, entity.StatusCancelled, decodeOrder(t, body).Status)

	status, body = ts.do(t, http.MethodPost, path+"/cancel", token, "", nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = ts.do(t, http.MethodPost, "/inventory/batch", token, `[1]`, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"1":3}`, body)

	status, body = ts.do(t, http.MethodGet, "/orders/my-orders", token, "", nil)
	require.Equal(t, http.StatusOK, status)
	var mine []entity.Order
	require.NoError(t, json.Unmarshal([]byte(body), &mine))
	assert.Len(t, mine, 1)
}

func TestPaymentOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "user@example.com")

	status, body := ts.do(t, http.MethodPost, "/orders", token, `{"items":[{"productId":1,"quantity":1}]}`, nil)
	require.Equal(t, http.StatusCreated, status, body)
	order := decodeOrder(t, body)
	path := "/orders/" + jsonID(order.ID)

	status, body = ts.do(t, http.MethodPost, "/payments/initiate", token, `{"orderId":`+jsonID(order.ID)+`,"amount":"10.00","paymentMethod":"CARD"}`, nil)
	require.Equal(t, http.StatusOK, status, body)
	var intent entity.PaymentIntent
	require.NoError(t, json.Unmarshal([]byte(body), &intent))
	assert.Equal(t, entity.PaymentInitiated, intent.Status)

	require.Eventually(t, func() bool {
		return ts.orderStatus(path, token) == entity.StatusPaid
	}, 2*time.Second, 10*time.Millisecond)

	status, body = ts.do(t, http.MethodPost, path+"/cancel", token, "", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, entity.StatusRefundPending, decodeOrder(t, body).Status)

	require.Eventually(t, func() bool {
		return ts.orderStatus(path, token) == entity.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	status, body = ts.do(t, http.MethodGet, "/payments/order/"+jsonID(order.ID), token, "", nil)
	require.Equal(t, http.StatusOK, status, body)
	var intents []entity.PaymentIntent
	require.NoError(t, json.Unmarshal([]byte(body), &intents))
	require.Len(t, intents, 1)
	assert.Equal(t, entity.PaymentRefunded, intents[0].Status)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	user := ts.login(t, "user@example.com")
	other := ts.login(t, "other@example.com")
	admin := ts.login(t, "admin@example.com")

	status, body := ts.do(t, http.MethodPost, "/orders", user, `{"items":[{"productId":1,"quantity":1}]}`, nil)
	require.Equal(t, http.StatusCreated, status, body)
	path := "/orders/" + jsonID(decodeOrder(t, body).ID)

	tests := []struct {
		name          string
		method, path  string
		token, body   string
		status        int
		code          string
		currentStatus entity.OrderStatus
	}{
		{"empty items", http.MethodPost, "/orders", user, `{"items":[]}`, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"bad json", http.MethodPost, "/orders", user, `{"items":`, http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"bad id", http.MethodGet, "/orders/abc", user, "", http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"unknown order", http.MethodGet, "/orders/999", user, "", http.StatusNotFound, "ORDER_NOT_FOUND", ""},
		{"unknown product", http.MethodPost, "/orders", user, `{"items":[{"productId":42,"quantity":1}]}`, http.StatusNotFound, "PRODUCT_NOT_FOUND", ""},
		{"out of stock", http.MethodPost, "/orders", user, `{"items":[{"productId":1,"quantity":50}]}`, http.StatusConflict, "INSUFFICIENT_STOCK", ""},
		{"not the owner", http.MethodGet, path, other, "", http.StatusForbidden, "FORBIDDEN", ""},
		{"admin only list", http.MethodGet, "/orders", user, "", http.StatusForbidden, "FORBIDDEN", ""},
		{"admin only stock", http.MethodPost, "/inventory/add", user, `{"productId":1,"quantity":5}`, http.StatusForbidden, "FORBIDDEN", ""},
		{"deliver", http.MethodPost, path + "/deliver", admin, "", http.StatusOK, "", ""},
		{"cancel delivered", http.MethodPost, path + "/cancel", user, "", http.StatusConflict, "CONFLICT", entity.StatusDelivered},
		{"pay delivered", http.MethodPost, "/payments/initiate", user, `{"orderId":` + strings.TrimPrefix(path, "/orders/") + `,"amount":"1","paymentMethod":"CARD"}`, http.StatusConflict, "CONFLICT", entity.StatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, tt.method, tt.path, tt.token, tt.body, nil)
			require.Equal(t, tt.status, status, body)
			if tt.code == "" {
				return
			}
			resp := decodeError(t, body)
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.currentStatus, resp.CurrentStatus)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestAdminStockAndCatalog(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin@example.com")

	status, body := ts.do(t, http.MethodPost, "/inventory/add", admin, `{"productId":1,"quantity":7}`, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.JSONEq(t, `{"productId":1,"available":10,"reserved":0}`, body)

	status, body = ts.do(t, http.MethodPost, "/inventory/set", admin, `{"productId":1,"quantity":-1}`, nil)
	require.Equal(t, http.StatusBadRequest, status, body)

	status, body = ts.do(t, http.MethodPost, "/products", admin, `{"name":"Lamp","price":"4.50"}`, nil)
	require.Equal(t, http.StatusCreated, status, body)
	var product entity.Product
	require.NoError(t, json.Unmarshal([]byte(body), &product))
	assert.Equal(t, entity.ProductActive, product.Status)

	status, body = ts.do(t, http.MethodGet, "/products/"+jsonID(product.ID), admin, "", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"name":"Lamp"`)

	status, body = ts.do(t, http.MethodGet, "/products", admin, "", nil)
	require.Equal(t, http.StatusOK, status, body)
	var all []entity.Product
	require.NoError(t, json.Unmarshal([]byte(body), &all))
	assert.Len(t, all, 2)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
