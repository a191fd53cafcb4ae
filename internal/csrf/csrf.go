// Package csrf implements double-submit CSRF protection. A random token is
// mirrored into a client-readable cookie; every state-changing request must
// echo it in a header. Validity is mirror equality alone, with nothing
// stored server-side.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightport/portal-auth/internal/domain"
)

const (
	// CookieName holds the mirrored token. The cookie is intentionally not
	// HttpOnly: the client request layer must read it to echo the header.
	CookieName = "portal_csrf"
	// HeaderName is the request header state-changing calls must carry.
	HeaderName = "X-CSRF-Token"

	tokenBytes   = 32
	cookieMaxAge = 12 * 60 * 60
)

// NewToken generates a 32-byte random token, base64url-encoded.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Middleware enforces the double-submit check. GET, HEAD, and OPTIONS pass
// through and receive a token cookie when they do not have one yet; every
// other method must present matching header and cookie values.
func Middleware(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if _, err := c.Cookie(CookieName); err != nil {
				token, genErr := NewToken()
				if genErr == nil {
					setCookie(c, token, secure)
				}
			}
			c.Next()
			return
		}

		cookie, err := c.Cookie(CookieName)
		header := c.GetHeader(HeaderName)
		if err != nil || cookie == "" || !Equal(header, cookie) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    domain.CodeCSRFMismatch,
				"message": "CSRF token missing or mismatched.",
			})
			return
		}
		c.Next()
	}
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func setCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
