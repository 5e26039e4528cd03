package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroconnect/internal/config"
	"astroconnect/internal/utils"
)

func newAuthRouter(t *testing.T) (*gin.Engine, config.SecurityConfig) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.SecurityConfig{
		JWT: config.JWTConfig{Secret: "test-secret", ExpiryHour: 1},
	}

	router := gin.New()
	router.Use(JWTAuth(cfg, "/login"))
	router.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	return router, cfg
}

func TestJWTAuthAcceptsBearerToken(t *testing.T) {
	router, cfg := newAuthRouter(t)

	token, err := utils.GenerateUserJWT("user-3", "Ravi", cfg.JWT)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-3")
}

func TestJWTAuthAcceptsQueryToken(t *testing.T) {
	router, cfg := newAuthRouter(t)

	token, err := utils.GenerateUserJWT("user-4", "", cfg.JWT)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "/login?return_to=/me")
}

func TestJWTAuthRejectsGarbageToken(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
