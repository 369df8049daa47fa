package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/teamchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/teamchat-backend/internal/http/middleware"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	AuthMiddleware  *httpMW.AuthMiddleware
	ChatHandler     *httpH.ChatHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler

	// MediaRoot is served under /media when attachments live on local disk.
	MediaRoot string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.MediaRoot != "" {
		r.StaticFS("/media", http.Dir(cfg.MediaRoot))
	}

	api := r.Group("/api/internal_chat")
	{
		// Websocket authenticates from its own query parameters.
		if cfg.RealtimeHandler != nil {
			api.GET("/ws", cfg.RealtimeHandler.Websocket)
		}
	}

	protected := api.Group("")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.RealtimeHandler != nil {
			protected.GET("/stream", cfg.RealtimeHandler.SSEStream)
		}

		if cfg.ChatHandler != nil {
			protected.GET("/rooms", cfg.ChatHandler.ListRooms)
			protected.POST("/rooms", cfg.ChatHandler.CreateRoom)
			protected.POST("/rooms/:room_kind/:room_identifier/read", cfg.ChatHandler.MarkRead)

			protected.GET("/messages/:room_kind", cfg.ChatHandler.ListMessages)
			protected.GET("/messages/:room_kind/:room_identifier", cfg.ChatHandler.ListMessages)
			protected.POST("/messages", cfg.ChatHandler.SendMessage)
			protected.PATCH("/messages/:id", cfg.ChatHandler.EditMessage)
			protected.DELETE("/messages/:id", cfg.ChatHandler.DeleteMessage)
		}
	}

	return r
}
