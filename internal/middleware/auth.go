package middleware

import (
	"strings"

	"astroconnect/internal/config"
	"astroconnect/internal/utils"
	"astroconnect/pkg/logger"

	"github.com/gin-gonic/gin"
)

// JWTAuth validates the access token and puts the caller's identity on
// the gin context. Unauthenticated calls get a 401 carrying the login
// redirect so clients can route the user back through sign-in.
func JWTAuth(cfg config.SecurityConfig, loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c, loginURL)
			c.Abort()
			return
		}

		claims, err := utils.ValidateUserJWT(tokenString, cfg.JWT)
		if err != nil {
			logger.WithError(err).Debug("rejected access token")
			utils.UnauthorizedResponse(c, loginURL)
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("role", claims.Role)
		c.Set("token", tokenString)

		c.Next()
	}
}

// extractToken reads the bearer token from the Authorization header, or
// from the token query parameter for WebSocket upgrades where custom
// headers are not available.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != authHeader {
			return token
		}
		return ""
	}
	return c.Query("token")
}
