package temporalx

import (
	"time"

	"github.com/yungbote/roomforge-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout    time.Duration
	DialMaxWait    time.Duration
	DialBackoff    time.Duration
	DialBackoffMax time.Duration

	AutoRegisterNamespace bool
	RetentionDays         int
	EnsureTimeout         time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "roomforge"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "roomforge-projects"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:    envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
		DialMaxWait:    envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60),
		DialBackoff:    envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", 250),
		DialBackoffMax: envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5000),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionDays:         clampRetention(envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 3)),
		EnsureTimeout:         envutil.Seconds("TEMPORAL_NAMESPACE_ENSURE_TIMEOUT_SECONDS", 10),
	}
}

// clampRetention bounds how long closed project workflows stay visible before the
// server deletes them.
func clampRetention(days int) int {
	if days < 1 {
		return 1
	}
	if days > 365 {
		return 365
	}
	return days
}

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
