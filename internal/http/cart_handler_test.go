package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_cart/marketplace-cart/internal/cart"
	"github.com/fjod/go_cart/marketplace-cart/internal/domain"
	"github.com/fjod/go_cart/marketplace-cart/internal/kvstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCartID = "5b8f1c2e-7d4a-4f6b-9a3e-2c1d0e9f8a7b"

func setupRouter(t *testing.T) (http.Handler, *kvstore.MemoryStore, *cart.Registry) {
	kv := kvstore.NewMemoryStore()
	reg := cart.NewRegistry(kv, nil, time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = reg.Close(ctx)
	})
	return NewRouter(reg, 5*time.Second), kv, reg
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(CartIDHeader, testCartID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) []domain.Item {
	t.Helper()
	var resp CartResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Products
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

var shirt = domain.ItemDetails{ID: "1", Title: "Shirt", ImageURL: "https://img/shirt.png", Price: 10}

func TestGetCart_Empty(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"products":[]}`, rec.Body.String())
}

func TestAddItem_Success(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", shirt)

	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeCart(t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, domain.NewItem(shirt), items[0])
}

func TestAddItem_InvalidJSON(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestAddItem_ValidationFails(t *testing.T) {
	tests := []struct {
		name string
		item domain.ItemDetails
	}{
		{"missing id", domain.ItemDetails{Title: "Shirt", Price: 1}},
		{"missing title", domain.ItemDetails{ID: "1", Price: 1}},
		{"negative price", domain.ItemDetails{ID: "1", Title: "Shirt", Price: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := setupRouter(t)

			rec := do(t, h, http.MethodPost, "/api/v1/cart/items", tt.item)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_item", decodeError(t, rec).Code)
		})
	}
}

func TestIncrementDecrement_Scenario(t *testing.T) {
	h, _, _ := setupRouter(t)

	do(t, h, http.MethodPost, "/api/v1/cart/items", shirt)
	rec := do(t, h, http.MethodPost, "/api/v1/cart/items/1/increment", nil)
	assert.Equal(t, 2, decodeCart(t, rec)[0].Quantity)

	do(t, h, http.MethodPost, "/api/v1/cart/items/1/decrement", nil)
	rec = do(t, h, http.MethodPost, "/api/v1/cart/items/1/decrement", nil)
	items := decodeCart(t, rec)
	require.Len(t, items, 1, "item at zero stays in the cart")
	assert.Equal(t, 0, items[0].Quantity)

	rec = do(t, h, http.MethodPost, "/api/v1/cart/items", shirt)
	assert.Equal(t, 1, decodeCart(t, rec)[0].Quantity)
}

func TestIncrement_UnknownIDIsNoop(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items/missing/increment", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec))
}

func TestAddItem_PersistsUnderSessionKey(t *testing.T) {
	h, kv, reg := setupRouter(t)

	do(t, h, http.MethodPost, "/api/v1/cart/items", shirt)

	s, err := reg.Open(context.Background(), testCartID)
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	raw, err := kv.Get(context.Background(), cart.KeyFor(testCartID))
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"id":"1","title":"Shirt","image_url":"https://img/shirt.png","price":10,"quantity":1}]`, raw)
}

func TestCartHandler_NoProvider(t *testing.T) {
	handler := NewCartHandler(nil)

	tests := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"get", handler.GetCart},
		{"add", handler.AddItem},
		{"increment", handler.Increment},
		{"decrement", handler.Decrement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "1")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			tt.fn(rec, req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "cart_unavailable", decodeError(t, rec).Code)
		})
	}
}

func TestHealth(t *testing.T) {
	h, _, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
