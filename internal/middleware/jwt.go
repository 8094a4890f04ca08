package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// ContextKeyClaims is the Gin context key for JWT claims.
const ContextKeyClaims = "claims"

// TokenValidator is the part of AuthService the middleware needs.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// tokenSource pulls the raw token out of a request, or "" when absent.
type tokenSource func(c *gin.Context) string

// bearerOrQuery reads "Authorization: Bearer <t>" and falls back to ?token=
// for EventSource clients, which cannot set headers.
func bearerOrQuery(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// queryOnly reads ?token=; browsers cannot set headers on a WebSocket upgrade.
func queryOnly(c *gin.Context) string {
	return c.Query("token")
}

// RequireStudentJWT admits student tokens only.
func RequireStudentJWT(auth TokenValidator) gin.HandlerFunc {
	return guard(auth, bearerOrQuery, service.TokenTypeStudent, response.ErrStudentAccessOnly)
}

// RequireAdminJWT admits admin tokens only.
func RequireAdminJWT(auth TokenValidator) gin.HandlerFunc {
	return guard(auth, bearerOrQuery, service.TokenTypeAdmin, response.ErrAdminAccessOnly)
}

// RequireJWT accepts any valid token. Handlers decide ownership.
func RequireJWT(auth TokenValidator) gin.HandlerFunc {
	return guard(auth, bearerOrQuery, "", "")
}

// RequireStudentWSAuth admits a student token passed as ?token= on the upgrade
// request.
func RequireStudentWSAuth(auth TokenValidator) gin.HandlerFunc {
	return guard(auth, queryOnly, service.TokenTypeStudent, response.ErrStudentAccessOnly)
}

func guard(auth TokenValidator, source tokenSource, want service.TokenType, denied response.ErrCode) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := source(c)
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if want != "" && claims.TokenType != want {
			response.AbortFail(c, http.StatusForbidden, denied)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims returns the claims stored by one of the guards, or nil.
func GetClaims(c *gin.Context) *service.Claims {
	claims, _ := c.Value(ContextKeyClaims).(*service.Claims)
	return claims
}
