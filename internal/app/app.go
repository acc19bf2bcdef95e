package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/roomforge-backend/internal/chathistory"
	"github.com/yungbote/roomforge-backend/internal/clients/redis"
	"github.com/yungbote/roomforge-backend/internal/data/db"
	"github.com/yungbote/roomforge-backend/internal/data/repos"
	apphttp "github.com/yungbote/roomforge-backend/internal/http"
	httpH "github.com/yungbote/roomforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/roomforge-backend/internal/http/middleware"
	"github.com/yungbote/roomforge-backend/internal/observability"
	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
	"github.com/yungbote/roomforge-backend/internal/providers"
	"github.com/yungbote/roomforge-backend/internal/providers/aiproxy"
	"github.com/yungbote/roomforge-backend/internal/providers/mock"
	"github.com/yungbote/roomforge-backend/internal/services"
	"github.com/yungbote/roomforge-backend/internal/temporalx"
	"github.com/yungbote/roomforge-backend/internal/temporalx/projectrun"
	"github.com/yungbote/roomforge-backend/internal/temporalx/temporalworker"
)

// Role selects which halves of the system a process runs.
type Role struct {
	API    bool
	Worker bool
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Role     Role
	DB       *gorm.DB
	Redis    *goredis.Client
	Bucket   gcp.BucketService
	Temporal temporalsdkclient.Client
	Repos    repos.Repos
	Metrics  *observability.Metrics

	Server *apphttp.Server
	Worker *temporalworker.Runner

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, role Role) (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.validate(); err != nil {
		log.Sync()
		return nil, err
	}
	a := &App{Log: log, Cfg: cfg, Role: role}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg
	serviceName := "roomforge-api"
	if !a.Role.API {
		serviceName = "roomforge-worker"
	}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pg = pg
	if err := pg.AutoMigrateAll(); err != nil {
		return fmt.Errorf("postgres automigrate: %w", err)
	}
	a.DB = pg.DB()
	a.Repos = repos.New(a.DB, log)

	a.Redis, err = redis.NewClient(log, cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.Bucket, err = resolveBucketService(log)
	if err != nil {
		return err
	}

	a.Temporal, err = temporalx.NewClient(cfg.Temporal, log)
	if err != nil {
		return fmt.Errorf("init temporal: %w", err)
	}
	if a.Temporal == nil {
		return errors.New("TEMPORAL_ADDRESS is required")
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	if a.Role.API {
		if err := a.wireAPI(policy); err != nil {
			return err
		}
	}
	if a.Role.Worker {
		if err := a.wireWorker(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) wireAPI(policy projectrun.Policy) error {
	engine, err := projectrun.NewEngine(a.Temporal, a.Cfg.Temporal.TaskQueue, policy)
	if err != nil {
		return err
	}
	projectService := services.NewProjectService(a.Log, a.Repos.ProjectRecords, engine, a.Bucket)

	checks := map[string]httpH.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	a.Server = apphttp.NewServer(apphttp.RouterConfig{
		Log:            a.Log,
		CORSOrigins:    a.Cfg.CORSOrigins,
		Metrics:        a.Metrics,
		Redis:          a.Redis,
		IdempotencyTTL: a.Cfg.IdempotencyTTL,
		AuthMiddleware: httpMW.NewAuthMiddleware(a.Log, a.Cfg.AuthJWTSecret),
		ProjectHandler: httpH.NewProjectHandler(projectService, a.Bucket),
		HealthHandler:  httpH.NewHealthHandler(checks),
	})
	if a.Cfg.AuthJWTSecret == "" {
		a.Log.Warn("AUTH_JWT_SECRET not set; projects are unowned")
	}
	return nil
}

func (a *App) wireWorker() error {
	set, err := a.resolveProviders()
	if err != nil {
		return err
	}
	var chat chathistory.Store = chathistory.NewBucketStore(a.Bucket)
	if a.Redis != nil {
		chat = chathistory.NewRedisStore(a.Redis, a.Cfg.ChatTTL)
	}
	acts := &projectrun.Activities{
		Log:       a.Log,
		Bucket:    a.Bucket,
		Chat:      chat,
		Providers: set,
		Records:   a.Repos.ProjectRecords,
	}
	a.Worker, err = temporalworker.NewRunner(a.Log, a.Cfg.Temporal, a.Temporal, acts)
	return err
}

func (a *App) resolveProviders() (providers.Set, error) {
	switch a.Cfg.ProviderMode {
	case ProviderModeAIProxy:
		c, err := aiproxy.New(a.Log, a.Cfg.Provider)
		if err != nil {
			return providers.Set{}, err
		}
		a.Log.Info("Using AI proxy providers", "base_url", a.Cfg.Provider.BaseURL)
		return c.Set(), nil
	default:
		a.Log.Warn("Using mock providers")
		return mock.New(), nil
	}
}

// Start launches background work: metric collectors and, for worker roles, the
// Temporal worker.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.Metrics.StartRedisCollector(ctx, a.Log, a.Redis)
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	if a.Metrics != nil {
		go a.collectProjectsByStep(ctx, time.Minute)
	}
	if a.Worker != nil {
		if err := a.Worker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	return nil
}

// Run serves HTTP until ctx is cancelled. Worker-only processes block on ctx.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	if a.Server == nil {
		<-ctx.Done()
		return nil
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
