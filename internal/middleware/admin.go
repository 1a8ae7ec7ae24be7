package middleware

import (
	"github.com/gin-gonic/gin"

	"tpia/internal/domain"
)

// AdminRequired guards the back-office routes. Must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}
