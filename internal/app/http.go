package app

import (
	"github.com/yungbote/teamchat-backend/internal/data/db"
	apphttp "github.com/yungbote/teamchat-backend/internal/http"
	httpH "github.com/yungbote/teamchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/teamchat-backend/internal/http/middleware"
	"github.com/yungbote/teamchat-backend/internal/observability"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
	"github.com/yungbote/teamchat-backend/internal/realtime"
)

const serviceName = "teamchat-backend"

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Chat     *httpH.ChatHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, hub *realtime.Hub, dbService *db.Service) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(dbService),
		Chat:     httpH.NewChatHandler(log, services.Chat, cfg.ChatDefaultPerPage),
		Realtime: httpH.NewRealtimeHandler(log, hub, services.Chat, services.Auth, cfg.CORSAllowOrigins, cfg.SSEHeartbeat),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics, mediaRoot string) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     serviceName,
		AllowedOrigins:  cfg.CORSAllowOrigins,
		Metrics:         metrics,
		AuthMiddleware:  middleware.Auth,
		ChatHandler:     handlers.Chat,
		RealtimeHandler: handlers.Realtime,
		HealthHandler:   handlers.Health,
		MediaRoot:       mediaRoot,
	})
}
