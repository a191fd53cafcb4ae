package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brightport/portal-auth/internal/domain"
	"github.com/brightport/portal-auth/internal/service"
)

const accountKey = "authAccount"

// Auth validates the Authorization header and attaches the account.
type Auth struct {
	Accounts *service.AccountService
}

// ValidateBearer ensures the request carries an access token bound to a live
// session.
func (m *Auth) ValidateBearer(c *gin.Context) {
	raw := BearerToken(c.Request)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    domain.CodeInvalidToken,
			"message": "A bearer access token is required.",
		})
		return
	}
	account, err := m.Accounts.Authenticate(c.Request.Context(), raw)
	if err != nil {
		status := http.StatusUnauthorized
		code := domain.CodeInvalidToken
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			status = authErr.Status
			code = authErr.Code
		}
		c.AbortWithStatusJSON(status, gin.H{"code": code, "message": "Invalid or expired access token."})
		return
	}
	c.Set(accountKey, account)
	c.Next()
}

// GetAccount exposes the authenticated account to handlers.
func GetAccount(c *gin.Context) (domain.Account, bool) {
	value, ok := c.Get(accountKey)
	if !ok {
		return domain.Account{}, false
	}
	account, ok := value.(domain.Account)
	return account, ok
}

// BearerToken extracts the token from an Authorization header, or "" when the
// header is missing or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
