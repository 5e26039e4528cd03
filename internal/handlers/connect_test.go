package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroconnect/internal/models"
	"astroconnect/internal/services"
	"astroconnect/internal/upstream"
	"astroconnect/internal/websocket"
)

// fakeBackend stubs the full upstream surface with canned answers good
// enough to drive the request endpoints.
type fakeBackend struct {
	provider *models.Provider
	balance  decimal.Decimal
}

func (f *fakeBackend) CreateRequest(ctx context.Context, userID, providerID string, kind models.SessionType) (*models.ConnectionRequest, error) {
	return &models.ConnectionRequest{
		ID:         "req-1",
		UserID:     userID,
		ProviderID: providerID,
		Type:       kind,
		Status:     models.StatusConnecting,
		CreatedAt:  time.Now(),
	}, nil
}

func (f *fakeBackend) GetRequestStatus(ctx context.Context, requestID string) (*upstream.StatusResult, error) {
	return &upstream.StatusResult{Status: models.StatusConnecting}, nil
}

func (f *fakeBackend) CancelRequest(ctx context.Context, requestID string) error { return nil }

func (f *fakeBackend) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return nil, &upstream.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
}

func (f *fakeBackend) EndSession(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	return nil, &upstream.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
}

func (f *fakeBackend) RateSession(ctx context.Context, sessionID string, rating int) error {
	return nil
}

func (f *fakeBackend) GetSessionHistory(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	return nil, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, sessionID, senderID, content string, kind models.MessageType) (*models.ChatMessage, error) {
	return nil, nil
}

func (f *fakeBackend) GetMessages(ctx context.Context, sessionID, before string, limit int) (*models.MessagePage, error) {
	return &models.MessagePage{}, nil
}

func (f *fakeBackend) SendTyping(ctx context.Context, sessionID, senderID string, typing bool) error {
	return nil
}

func (f *fakeBackend) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeBackend) GetProvider(ctx context.Context, providerID string) (*models.Provider, error) {
	return f.provider, nil
}

func (f *fakeBackend) GetMediaToken(ctx context.Context, sessionID string) (*models.MediaToken, error) {
	return &models.MediaToken{}, nil
}

type idleSource struct{}

func (idleSource) Watch(ctx context.Context, requestID string) <-chan services.StatusUpdate {
	ch := make(chan services.StatusUpdate)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

type memoryStore struct {
	saved map[string]*models.ConnectionRequest
}

func (m *memoryStore) SaveActive(ctx context.Context, request *models.ConnectionRequest) error {
	m.saved[request.UserID] = request
	return nil
}

func (m *memoryStore) LoadActive(ctx context.Context, userID string) (*models.ConnectionRequest, error) {
	if r, ok := m.saved[userID]; ok {
		return r, nil
	}
	return nil, services.ErrNoActiveRequest
}

func (m *memoryStore) ClearActive(ctx context.Context, userID string) error {
	delete(m.saved, userID)
	return nil
}

func (m *memoryStore) ListActive(ctx context.Context) ([]*models.ConnectionRequest, error) {
	return nil, nil
}

func newConnectRouter(backend *fakeBackend) *gin.Engine {
	gin.SetMode(gin.TestMode)

	hub := websocket.NewHub()
	go hub.Run()

	wallet := services.NewWalletService(backend, 5)
	requests := services.NewRequestService(backend, wallet, &memoryStore{saved: map[string]*models.ConnectionRequest{}}, hub, idleSource{}, 60)
	handler := NewConnectHandler(requests)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	router.POST("/requests", handler.CreateRequest)
	router.GET("/requests/current", handler.Current)
	router.DELETE("/requests/current", handler.Cancel)
	return router
}

func onlineProvider() *models.Provider {
	return &models.Provider{
		ID:             "astro-9",
		Name:           "Meera",
		Online:         true,
		PricePerMinute: decimal.NewFromInt(10),
	}
}

func TestCreateRequestEndpoint(t *testing.T) {
	router := newConnectRouter(&fakeBackend{provider: onlineProvider(), balance: decimal.NewFromInt(200)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests",
		strings.NewReader(`{"provider_id":"astro-9","session_type":"chat"}`))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"req-1"`)
	assert.Contains(t, w.Body.String(), "connecting")
}

func TestCreateRequestInsufficientBalance(t *testing.T) {
	router := newConnectRouter(&fakeBackend{provider: onlineProvider(), balance: decimal.NewFromInt(30)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests",
		strings.NewReader(`{"provider_id":"astro-9","session_type":"chat"}`))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_BALANCE")
	assert.Contains(t, w.Body.String(), `"shortfall":"20"`)
}

func TestCreateRequestProviderOffline(t *testing.T) {
	provider := onlineProvider()
	provider.Online = false
	router := newConnectRouter(&fakeBackend{provider: provider, balance: decimal.NewFromInt(200)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests",
		strings.NewReader(`{"provider_id":"astro-9","session_type":"chat"}`))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "PROVIDER_OFFLINE")
}

func TestCreateRequestInvalidPayload(t *testing.T) {
	router := newConnectRouter(&fakeBackend{provider: onlineProvider(), balance: decimal.NewFromInt(200)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests",
		strings.NewReader(`{"provider_id":"astro-9","session_type":"carrier-pigeon"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentWithoutRequest(t *testing.T) {
	router := newConnectRouter(&fakeBackend{provider: onlineProvider(), balance: decimal.NewFromInt(200)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/requests/current", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateThenCancel(t *testing.T) {
	router := newConnectRouter(&fakeBackend{provider: onlineProvider(), balance: decimal.NewFromInt(200)})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/requests",
		strings.NewReader(`{"provider_id":"astro-9","session_type":"video"}`))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/requests/current", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cancelled")
}
