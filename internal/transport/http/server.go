package http

import (
	"github.com/gin-gonic/gin"

	"pdfchat/internal/bootstrap"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = int64(app.Config.App.MaxUploadMB) << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Ingest, app.Config.App.MaxUploadMB)
	chatHandler := handler.NewChatHandler(app.Chat)

	api := router.Group("/api")
	api.Use(middleware.RequireCredential(middleware.CredentialConfig{
		JWTSecret:  app.Config.Auth.JWTSecret,
		CookieName: app.Config.Auth.CredentialCookie,
		HeaderName: app.Config.Auth.CredentialHeader,
	}))
	api.POST("/upload", documentHandler.Upload)
	api.GET("/documents", documentHandler.List)
	api.DELETE("/documents/:id", documentHandler.Delete)
	api.POST("/chat", chatHandler.Stream)
	api.GET("/chats", chatHandler.List)
	api.GET("/chats/:id", chatHandler.Get)
	api.DELETE("/chats/:id", chatHandler.Delete)

	return router
}
