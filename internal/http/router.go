package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/brightport/portal-auth/internal/config"
	"github.com/brightport/portal-auth/internal/csrf"
	"github.com/brightport/portal-auth/internal/http/handler"
	httpmiddleware "github.com/brightport/portal-auth/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(httpmiddleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if cfg.CSRFEnabled {
		r.Use(csrf.Middleware(cfg.CSRFSecure))
	}

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/verify-email", authHandler.VerifyEmail)
		authGroup.POST("/resend-code", authHandler.ResendCode)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)

		oauth := authGroup.Group("/oauth")
		{
			oauth.POST("/google", authHandler.OAuthGoogle)
			oauth.POST("/linkedin", authHandler.OAuthLinkedIn)
		}

		authGroup.GET("/me", authMiddleware.ValidateBearer, authHandler.Me)
		// Logout is best effort and never fails visibly, so it stays outside
		// the bearer gate. The handler passes whatever token is present.
		authGroup.POST("/logout", authHandler.Logout)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	return r
}
