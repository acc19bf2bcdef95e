package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/roomforge-backend/internal/clients/redis"
	"github.com/yungbote/roomforge-backend/internal/data/db"
	"github.com/yungbote/roomforge-backend/internal/platform/envutil"
	"github.com/yungbote/roomforge-backend/internal/providers/aiproxy"
	"github.com/yungbote/roomforge-backend/internal/temporalx"
	"github.com/yungbote/roomforge-backend/internal/temporalx/projectrun"
)

const (
	ProviderModeMock    = "mock"
	ProviderModeAIProxy = "aiproxy"
)

type Config struct {
	Port        string
	LogMode     string
	Environment string
	Version     string

	AuthJWTSecret  string
	CORSOrigins    []string
	IdempotencyTTL time.Duration

	ProviderMode string
	PolicyFile   string
	Inactivity   time.Duration
	PurgeDelay   time.Duration
	ChatTTL      time.Duration

	Postgres db.PostgresConfig
	Redis    redis.Config
	Temporal temporalx.Config
	Provider aiproxy.Config
}

func LoadConfig() Config {
	return Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "local"),
		Version:     envutil.String("APP_VERSION", "dev"),

		AuthJWTSecret:  envutil.String("AUTH_JWT_SECRET", ""),
		CORSOrigins:    splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		IdempotencyTTL: envutil.Hours("IDEMPOTENCY_TTL_HOURS", 24),

		ProviderMode: strings.ToLower(envutil.String("PROVIDER_MODE", ProviderModeMock)),
		PolicyFile:   envutil.String("ACTIVITY_POLICY_FILE", ""),
		Inactivity:   envutil.Hours("PROJECT_INACTIVITY_HOURS", 0),
		PurgeDelay:   envutil.Hours("PROJECT_PURGE_HOURS", 0),
		ChatTTL:      envutil.Hours("CHAT_HISTORY_TTL_HOURS", 24*7),

		Postgres: db.LoadPostgresConfig(),
		Redis:    redis.LoadConfig(),
		Temporal: temporalx.LoadConfig(),
		Provider: aiproxy.LoadConfig(),
	}
}

// Policy loads the activity policy file and applies the lifecycle env overrides. Zero
// overrides keep the file or default values.
func (c Config) Policy() (projectrun.Policy, error) {
	p, err := projectrun.LoadPolicyFile(c.PolicyFile)
	if err != nil {
		return p, err
	}
	if c.Inactivity > 0 {
		p.Lifecycle.Inactivity = c.Inactivity
	}
	if c.PurgeDelay > 0 {
		p.Lifecycle.PurgeDelay = c.PurgeDelay
	}
	return p, nil
}

func (c Config) validate() error {
	switch c.ProviderMode {
	case ProviderModeMock, ProviderModeAIProxy:
	default:
		return fmt.Errorf("unsupported PROVIDER_MODE %q", c.ProviderMode)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is empty")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
