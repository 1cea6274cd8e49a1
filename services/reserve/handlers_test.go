package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/orders-tpc/internal/api"
	"github.com/matheusmosca/orders-tpc/internal/rpc"
	"github.com/matheusmosca/orders-tpc/internal/tpc/tpctest"
)

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlers_ReserveLifecycle(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	f := newReserveFixture()
	r := rpc.NewRouter("reserve-test")
	RegisterRoutes(r, f.reserves, f.warehouse, tpctest.NewCoordinator())

	// Act
	w := do(r, http.MethodPost, "/api/items/top-up", api.TopUpItemRequest{ItemID: "apple", Amount: 5})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/reserves", api.CreateReserveRequest{ExternalRef: "order-1", Items: []api.ItemAmount{{ItemID: "apple", Amount: 2}}})
	require.Equal(t, http.StatusCreated, w.Code)
	var created api.Reserve
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(r, http.MethodPost, "/api/reserves/"+created.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var approved api.Reserve
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &approved))

	w = do(r, http.MethodGet, "/api/items/apple/cost", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cost api.ItemCost
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cost))

	// Assert
	assert.Equal(t, "APPROVED", approved.Status)
	require.Len(t, approved.Items, 1)
	assert.True(t, approved.Items[0].Reserved)
	assert.Equal(t, "10", cost.Cost.String())
}

func TestHandlers_CreateRequiresItems(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newReserveFixture()
	r := rpc.NewRouter("reserve-test")
	RegisterRoutes(r, f.reserves, f.warehouse, tpctest.NewCoordinator())

	w := do(r, http.MethodPost, "/api/reserves", api.CreateReserveRequest{ExternalRef: "order-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
