package app

import (
	"errors"
	"fmt"

	"github.com/yungbote/roomforge-backend/internal/platform/gcp"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

var (
	resolveObjectStorageConfig = gcp.ResolveObjectStorageConfigFromEnv
	newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func resolveBucketService(log *logger.Logger) (gcp.BucketService, error) {
	storageCfg, err := resolveObjectStorageConfig()
	if err != nil {
		log.Error("Object storage provider selection failed", "mode", storageCfg.Mode, "error", err)
		return nil, &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorInvalidConfig, Mode: string(storageCfg.Mode), Cause: err}
	}
	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
	)
	bucket, err := newBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		code := StorageProviderBootstrapErrorConnectFailed
		var cfgErr *gcp.ObjectStorageConfigError
		if errors.As(err, &cfgErr) {
			code = StorageProviderBootstrapErrorInvalidConfig
		}
		log.Error("Object storage provider bootstrap failed", "mode", storageCfg.Mode, "error_code", code, "error", err)
		return nil, &StorageProviderBootstrapError{Code: code, Mode: string(storageCfg.Mode), Cause: err}
	}
	return bucket, nil
}
