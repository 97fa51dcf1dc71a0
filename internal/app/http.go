package app

import (
	"github.com/yungbote/readsession-backend/internal/db"
	"github.com/yungbote/readsession-backend/internal/http"
	httpH "github.com/yungbote/readsession-backend/internal/http/handlers"
	httpMW "github.com/yungbote/readsession-backend/internal/http/middleware"
	"github.com/yungbote/readsession-backend/internal/observability"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
	"github.com/yungbote/readsession-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Session  *httpH.SessionHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, dbs *db.Service, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(dbs),
		Session:  httpH.NewSessionHandler(log, services.Reading),
		Realtime: httpH.NewRealtimeHandler(log, sseHub),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *http.Server {
	return http.NewServer(http.RouterConfig{
		AuthMiddleware:  middleware.Auth,
		SessionHandler:  handlers.Session,
		RealtimeHandler: handlers.Realtime,
		HealthHandler:   handlers.Health,
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.Otel.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		TracingEnabled:  cfg.Otel.Enabled,
	})
}
