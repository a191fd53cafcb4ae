package domain

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes. Client UIs branch on these, so they are part
// of the API contract.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyVerified    = "ALREADY_VERIFIED"
	CodeCodeExpired        = "CODE_EXPIRED"
	CodeCodeMismatch       = "CODE_MISMATCH"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodePendingApproval    = "PENDING_APPROVAL"
	CodeAccountSuspended   = "ACCOUNT_SUSPENDED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeInvalidResetToken  = "INVALID_RESET_TOKEN"
	CodeCSRFMismatch       = "CSRF_MISMATCH"
	CodeUnavailable        = "UNAVAILABLE"
)

// AuthError is a typed failure carrying the machine code and HTTP status.
// RetryAfter is set in seconds for rate-limit and lockout responses.
type AuthError struct {
	Code       string
	Message    string
	Status     int
	RetryAfter int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError builds a typed failure.
func NewAuthError(code, message string, status int) *AuthError {
	return &AuthError{Code: code, Message: message, Status: status}
}

// ErrValidation reports malformed input. The message aggregates every
// violated rule.
func ErrValidation(message string) *AuthError {
	return NewAuthError(CodeValidation, message, http.StatusBadRequest)
}

// ErrRateLimited reports a denied admission with a retry hint.
func ErrRateLimited(retryAfter int) *AuthError {
	e := NewAuthError(CodeRateLimited, "Too many attempts. Please try again later.", http.StatusTooManyRequests)
	e.RetryAfter = retryAfter
	return e
}

// ErrInvalidCredentials is deliberately identical for unknown email and
// wrong password so callers cannot enumerate accounts.
func ErrInvalidCredentials() *AuthError {
	return NewAuthError(CodeInvalidCredentials, "Invalid email or password.", http.StatusUnauthorized)
}

// ErrAccountLocked reports an active login lockout.
func ErrAccountLocked(retryAfter int) *AuthError {
	e := NewAuthError(CodeAccountLocked, "Account temporarily locked due to repeated failed logins.", http.StatusForbidden)
	e.RetryAfter = retryAfter
	return e
}

// ErrEmailNotVerified gates login until the verification code is consumed.
func ErrEmailNotVerified() *AuthError {
	return NewAuthError(CodeEmailNotVerified, "Email address has not been verified.", http.StatusForbidden)
}

// ErrPendingApproval gates login until an administrator approves the account.
func ErrPendingApproval() *AuthError {
	return NewAuthError(CodePendingApproval, "Account is awaiting administrator approval.", http.StatusForbidden)
}

// ErrAccountSuspended reports a suspended account.
func ErrAccountSuspended() *AuthError {
	return NewAuthError(CodeAccountSuspended, "Account has been suspended.", http.StatusForbidden)
}

// ErrInvalidToken reports a token that failed verification or carries the
// wrong type.
func ErrInvalidToken() *AuthError {
	return NewAuthError(CodeInvalidToken, "Token is invalid or expired.", http.StatusUnauthorized)
}

// ErrSessionNotFound reports a token whose session was revoked or rotated out.
func ErrSessionNotFound() *AuthError {
	return NewAuthError(CodeSessionNotFound, "Session no longer exists.", http.StatusUnauthorized)
}

// ErrUnavailable reports an unreachable downstream dependency.
func ErrUnavailable(message string) *AuthError {
	return NewAuthError(CodeUnavailable, message, http.StatusServiceUnavailable)
}
