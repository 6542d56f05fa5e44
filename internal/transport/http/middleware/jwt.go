package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docintell/internal/pkg/jwtutil"
	"docintell/internal/transport/http/response"
)

const (
	ContextSubjectKey  = "subject"
	ContextUsernameKey = "username"
)

// AuthJWT verifies bearer tokens minted by the upstream auth service. With an
// empty secret every request passes.
func AuthJWT(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		token, detail := bearerToken(c.GetHeader("Authorization"))
		if detail != "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, detail)
			return
		}
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ContextSubjectKey, claims.Subject)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// bearerToken returns the token, or a detail message when the header is
// unusable.
func bearerToken(header string) (string, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization scheme"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}
