package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classroom-insights/internal/middleware"
	"github.com/noah-isme/classroom-insights/internal/models"
)

// claimsFromContext returns the operator claims stored by the JWT
// middleware, or nil when the request was not authenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.JWTClaims); ok {
		return claims
	}
	return nil
}
