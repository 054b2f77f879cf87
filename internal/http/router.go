package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/medev213/darksmart/internal/config"
	"github.com/medev213/darksmart/internal/http/handler"
	"github.com/medev213/darksmart/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, oauthHandler *handler.OAuthHandler, fulfillmentHandler *handler.FulfillmentHandler, authMiddleware *middleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/authorize", oauthHandler.Authorize)
	r.POST("/authorize", oauthHandler.Login)
	r.POST("/token", oauthHandler.Token)
	r.POST("/revoke", oauthHandler.Revoke)
	r.GET("/tokeninfo", oauthHandler.TokenInfo)

	r.POST("/fulfillment", authMiddleware.ValidateJWT, fulfillmentHandler.Handle)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	return r
}
