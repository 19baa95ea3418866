package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/gpconsultingargentina/personal-trainer-api/internal/middleware"
	"github.com/gpconsultingargentina/personal-trainer-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// studentScope restricts a student caller to their own records: for
// trainer callers it returns requested unchanged, for student callers
// it always returns their own student id.
func studentScope(c *gin.Context, requested string) string {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role == models.RoleTrainer {
		return requested
	}
	if claims.StudentID != nil {
		return *claims.StudentID
	}
	return requested
}
