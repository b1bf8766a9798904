package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AnyTenant grants a token access to every tenant
const AnyTenant = "*"

var (
	ErrUnauthorized = errors.New("invalid or missing token")
	ErrForbidden    = errors.New("token not valid for tenant")
)

// Tokens maps a bearer token to the tenant it may act for.
type Tokens map[string]string

// ParseTokens reads "token:tenant" pairs as produced by envconfig maps.
func ParseTokens(pairs map[string]string) Tokens {
	t := make(Tokens, len(pairs))
	for token, tenant := range pairs {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tenant = strings.TrimSpace(tenant)
		if tenant == "" {
			tenant = AnyTenant
		}
		t[token] = tenant
	}
	return t
}

// Authorize checks token against tenantID. An empty tenantID only requires
// the token to be known.
func (t Tokens) Authorize(tenantID, token string) error {
	owner, ok := t[token]
	if !ok || token == "" {
		return ErrUnauthorized
	}
	if owner != AnyTenant && tenantID != "" && owner != tenantID {
		return ErrForbidden
	}
	return nil
}

// BearerToken extracts the token from an Authorization header
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequireBearer rejects requests whose bearer token does not grant access to
// the tenant named by the route parameter or the X-Tenant-ID header.
func RequireBearer(tokens Tokens, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.Param(param)
		if tenant == "" {
			tenant = c.GetHeader("X-Tenant-ID")
		}

		err := tokens.Authorize(tenant, BearerToken(c.GetHeader("Authorization")))
		switch {
		case errors.Is(err, ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
			return
		case errors.Is(err, ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": err.Error()})
			return
		}
		c.Next()
	}
}
