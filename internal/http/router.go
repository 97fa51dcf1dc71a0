package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/readsession-backend/internal/http/handlers"
	httpMW "github.com/yungbote/readsession-backend/internal/http/middleware"
	"github.com/yungbote/readsession-backend/internal/observability"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

type RouterConfig struct {
	AuthMiddleware  *httpMW.AuthMiddleware
	SessionHandler  *httpH.SessionHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler

	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string
	// TracingEnabled attaches otelgin so request spans parent usecase spans.
	TracingEnabled bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "readsession"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Reading sessions
		if h := cfg.SessionHandler; h != nil {
			protected.POST("/sessions/start", h.Start)
			protected.GET("/sessions", h.List)
			protected.GET("/sessions/:id", h.Get)
			protected.GET("/sessions/:id/events", h.ListEvents)
			protected.POST("/sessions/:id/pre-phase", h.SubmitPrePhase)
			protected.POST("/sessions/:id/advance", h.Advance)
			protected.POST("/sessions/:id/events", h.RecordEvent)
			protected.POST("/sessions/:id/finish", h.Finish)
			protected.POST("/sessions/:id/archive", h.Archive)
			protected.POST("/sessions/:id/outcome/recompute", h.RecomputeOutcome)
		}
	}

	return r
}
