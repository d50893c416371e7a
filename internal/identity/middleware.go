package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/wtomax/internal/custody"
)

const (
	ctxCallerClaims  = "wtomax_caller_claims"
	ctxCallerAddress = "wtomax_caller_address"
)

// RequireCaller returns a Gin middleware that enforces a valid Bearer caller
// token and injects the caller address into the context.
func RequireCaller(tokens *CallerTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
				"code":  "unauthenticated",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
				"code":  "unauthenticated",
			})
			return
		}
		caller, err := claims.Caller()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token subject",
				"code":  "unauthenticated",
			})
			return
		}

		c.Set(ctxCallerClaims, claims)
		c.Set(ctxCallerAddress, caller)
		c.Next()
	}
}

// CallerFromCtx returns the address injected by RequireCaller, or the zero
// address when the route is unauthenticated.
func CallerFromCtx(c *gin.Context) custody.Address {
	v, _ := c.Get(ctxCallerAddress)
	a, _ := v.(custody.Address)
	return a
}

// ClaimsFromCtx returns the caller claims injected by RequireCaller.
func ClaimsFromCtx(c *gin.Context) *CallerClaims {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	return claims
}
