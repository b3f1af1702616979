package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter sets up the Gin router for the control API. The API is meant
// to be bound to localhost; a set-top shell or sidecar drives the credential
// lifecycle through it without linking the package.
func SetupRouter(handlers *SessionHandlers, log *logrus.Entry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	session := router.Group("/session")
	{
		session.POST("/login", handlers.Login)
		session.GET("/status", handlers.Status)
		session.POST("/refresh", handlers.Refresh)
		session.POST("/logout", handlers.Logout)
	}

	playback := router.Group("/playback")
	{
		playback.POST("/token", handlers.PlaybackToken)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
