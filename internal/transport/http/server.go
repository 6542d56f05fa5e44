package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"docintell/internal/bootstrap"
	"docintell/internal/metrics"
	"docintell/internal/transport/http/handler"
	"docintell/internal/transport/http/middleware"
)

type Options struct {
	GinMode        string
	JWTSecret      string
	MaxUploadBytes int64
	Documents      handler.DocumentService
	Chat           handler.ChatService
	Health         *handler.HealthHandler
	Metrics        *metrics.Metrics
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	return NewEngine(Options{
		GinMode:        app.Config.App.GinMode,
		JWTSecret:      app.Config.Auth.JWTSecret,
		MaxUploadBytes: app.Config.Ingest.MaxUploadBytes,
		Documents:      app.Documents,
		Chat:           app.Chat,
		Health:         handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app)),
		Metrics:        app.Metrics,
	})
}

func NewEngine(opts Options) *gin.Engine {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.Metrics(opts.Metrics))

	if opts.Health != nil {
		router.GET("/healthz", opts.Health.Check)
	}
	router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	documentHandler := handler.NewDocumentHandler(opts.Documents, opts.MaxUploadBytes)
	chatHandler := handler.NewChatHandler(opts.Chat)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(opts.JWTSecret))

	documentGroup := v1.Group("/documents")
	documentGroup.POST("/upload", documentHandler.Upload)
	documentGroup.GET("/", documentHandler.List)
	documentGroup.GET("/:id", documentHandler.Get)
	documentGroup.DELETE("/:id", documentHandler.Delete)

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/", chatHandler.Chat)
	chatGroup.GET("/conversations", chatHandler.ListConversations)
	chatGroup.GET("/conversations/:id", chatHandler.GetConversation)
	chatGroup.DELETE("/conversations/:id", chatHandler.DeleteConversation)

	return router
}

func healthChecks(app *bootstrap.App) map[string]handler.Check {
	checks := map[string]handler.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	if app.NATS != nil {
		checks["nats"] = func(context.Context) error {
			if !app.NATS.IsConnected() {
				return errors.New("not connected: " + app.NATS.Status().String())
			}
			return nil
		}
	}
	return checks
}
