package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/syziel1/zrozoom-quiz-backend/internal/response"
	"github.com/syziel1/zrozoom-quiz-backend/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the live login
// in Redis. A mismatch means the login was superseded or logged out.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := authService.ValidateUserSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
