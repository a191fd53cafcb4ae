package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brightport/portal-auth/internal/domain"
	httpmiddleware "github.com/brightport/portal-auth/internal/http/middleware"
	"github.com/brightport/portal-auth/internal/service"
)

// AuthHandler exposes the account lifecycle over HTTP.
type AuthHandler struct {
	Accounts *service.AccountService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{Accounts: accounts}
}

// Register creates a new pending account and mails its verification code.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Company  string `json:"company"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	view, err := h.Accounts.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Company:  req.Company,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Registration accepted. Check your email for the verification code.",
		"user":    view,
	})
}

// VerifyEmail consumes the emailed six digit code.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	view, err := h.Accounts.VerifyEmail(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Email verified. Your account is awaiting approval.",
		"user":    view,
	})
}

// ResendCode reissues the verification code.
func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	if err := h.Accounts.ResendCode(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "A new verification code has been sent."})
}

// Login exchanges email and password for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	resp, err := h.Accounts.Login(c.Request.Context(), req.Email, req.Password, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	resp, err := h.Accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ForgotPassword starts a reset flow. The response never reveals whether the
// email has an account.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	if err := h.Accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "If that email has an account, a reset link is on its way.",
	})
}

// ResetPassword consumes a reset token and replaces the password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Password updated. Please sign in with your new password.",
	})
}

// OAuthGoogle signs in with a Google ID token credential.
func (h *AuthHandler) OAuthGoogle(c *gin.Context) {
	var req struct {
		Credential string `json:"credential" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	resp, err := h.Accounts.LoginWithGoogle(c.Request.Context(), req.Credential, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// OAuthLinkedIn signs in with a LinkedIn authorization code.
func (h *AuthHandler) OAuthLinkedIn(c *gin.Context) {
	var req struct {
		Code        string `json:"code" binding:"required"`
		RedirectURI string `json:"redirect_uri" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBinding(c, err)
		return
	}
	resp, err := h.Accounts.LoginWithLinkedIn(c.Request.Context(), req.Code, req.RedirectURI, clientMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	view, err := h.Accounts.Me(c.Request.Context(), httpmiddleware.BearerToken(c.Request))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": view})
}

// Logout revokes the current session. Always succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Accounts.Logout(c.Request.Context(), httpmiddleware.BearerToken(c.Request))
	c.JSON(http.StatusOK, gin.H{"message": "Signed out."})
}

func clientMeta(c *gin.Context) service.LoginMeta {
	return service.LoginMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func respondBinding(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    domain.CodeValidation,
		"message": "Invalid request body: " + err.Error(),
	})
}

// respondError maps service failures onto the wire taxonomy. Anything that is
// not an AuthError is an internal fault and comes back as UNAVAILABLE.
func respondError(c *gin.Context, err error) {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		if authErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(authErr.RetryAfter))
		}
		c.JSON(authErr.Status, gin.H{"code": authErr.Code, "message": authErr.Message})
		return
	}
	zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"code":    domain.CodeUnavailable,
		"message": "Something went wrong. Please try again later.",
	})
}
