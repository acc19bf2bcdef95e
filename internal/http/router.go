package http

import (
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/roomforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/roomforge-backend/internal/http/middleware"
	"github.com/yungbote/roomforge-backend/internal/observability"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	Redis          *goredis.Client
	IdempotencyTTL time.Duration

	AuthMiddleware *httpMW.AuthMiddleware
	ProjectHandler *httpH.ProjectHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "roomforge-api"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	projects := r.Group("/projects")
	if cfg.AuthMiddleware != nil {
		projects.Use(cfg.AuthMiddleware.RequireAuth())
	}
	projects.Use(httpMW.Idempotency(log, cfg.Redis, cfg.IdempotencyTTL))

	if h := cfg.ProjectHandler; h != nil {
		projects.POST("", h.CreateProject)
		projects.GET("", h.ListProjects)
		projects.GET("/:id", h.GetProject)
		projects.DELETE("/:id", h.DeleteProject)

		// Photos & scan
		projects.POST("/:id/photos", h.UploadPhoto)
		projects.DELETE("/:id/photos/:photoId", h.RemovePhoto)
		projects.POST("/:id/photos/confirm", h.ConfirmPhotos)
		projects.POST("/:id/scan", h.UploadScan)
		projects.POST("/:id/scan/skip", h.SkipScan)

		// Intake
		projects.POST("/:id/intake/start", h.StartIntake)
		projects.POST("/:id/intake/message", h.SendIntakeMessage)
		projects.POST("/:id/intake/confirm", h.ConfirmIntake)
		projects.POST("/:id/intake/skip", h.SkipIntake)

		// Design
		projects.POST("/:id/select", h.SelectOption)
		projects.POST("/:id/iterate/annotate", h.SubmitAnnotationEdit)
		projects.POST("/:id/iterate/feedback", h.SubmitTextFeedback)
		projects.POST("/:id/approve", h.Approve)
		projects.POST("/:id/start-over", h.StartOver)
		projects.POST("/:id/retry", h.Retry)
	}
	return r
}
