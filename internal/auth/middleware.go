package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qrattend/internal/response"
)

const (
	ContextKeyClaims       = "claims"
	ContextKeyInstructorID = "instructor_id"
)

// InstructorAuth enforces bearer JWT tokens signed with HS256 and carrying
// the instructor role.
func InstructorAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if claims.Role != RoleInstructor {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyInstructorID, claims.Subject)
		c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on WebSocket handshakes, so upgrades may pass ?access_token= instead.
func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return c.Query("access_token")
	}
	return ""
}

// InstructorID returns the authenticated instructor, or "".
func InstructorID(c *gin.Context) string {
	return c.GetString(ContextKeyInstructorID)
}
