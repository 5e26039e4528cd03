package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroconnect/internal/models"
	"astroconnect/internal/services"
	"astroconnect/internal/upstream"
)

type fakeWalletBackend struct {
	provider *models.Provider
	balance  decimal.Decimal
	err      error
}

func (f *fakeWalletBackend) GetProvider(ctx context.Context, providerID string) (*models.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

func (f *fakeWalletBackend) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return f.balance, nil
}

func newWalletRouter(backend *fakeWalletBackend) *gin.Engine {
	gin.SetMode(gin.TestMode)

	wallet := services.NewWalletService(backend, 5)
	handler := NewWalletHandler(wallet, backend)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	router.GET("/wallet/check", handler.CheckBalance)
	router.GET("/providers/:provider_id", handler.GetProvider)
	return router
}

func TestCheckBalanceSufficient(t *testing.T) {
	backend := &fakeWalletBackend{
		provider: &models.Provider{ID: "astro-9", PricePerMinute: decimal.NewFromInt(10)},
		balance:  decimal.NewFromInt(120),
	}
	router := newWalletRouter(backend)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet/check?provider_id=astro-9", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                  `json:"success"`
		Data    services.BalanceCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Data.Sufficient)
	assert.Equal(t, "50", body.Data.Required.String())
}

func TestCheckBalanceMissingProviderID(t *testing.T) {
	router := newWalletRouter(&fakeWalletBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet/check", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckBalanceUpstreamErrorPassesThrough(t *testing.T) {
	backend := &fakeWalletBackend{
		err: &upstream.APIError{StatusCode: http.StatusNotFound, Message: "provider not found"},
	}
	router := newWalletRouter(backend)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/wallet/check?provider_id=missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "provider not found")
}

func TestGetProvider(t *testing.T) {
	backend := &fakeWalletBackend{
		provider: &models.Provider{ID: "astro-9", Name: "Meera", Online: true, PricePerMinute: decimal.NewFromInt(15)},
	}
	router := newWalletRouter(backend)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/providers/astro-9", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Meera")
}
