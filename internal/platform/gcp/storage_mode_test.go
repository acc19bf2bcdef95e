package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigFromEnvDefaultGCS(t *testing.T) {
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "roomforge-projects")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvExplicitGCS(t *testing.T) {
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "roomforge-projects")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvExplicitEmulator(t *testing.T) {
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "roomforge-projects")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvCompatibilityFallback(t *testing.T) {
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "roomforge-projects")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if !cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=true got=false")
	}
}

func TestResolveObjectStorageConfigFromEnvInvalidMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "local")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	_, err := ResolveObjectStorageConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: expected error, got nil")
	}
}

func TestResolveObjectStorageConfigFromEnvMissingEmulatorHost(t *testing.T) {
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "roomforge-projects")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	_, err := ResolveObjectStorageConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: expected error, got nil")
	}
}

func TestResolveObjectStorageConfigFromEnvInvalidEmulatorHost(t *testing.T) {
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "roomforge-projects")
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs:4443")

	_, err := ResolveObjectStorageConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: expected error, got nil")
	}
}

func TestResolveObjectStorageConfigFromEnvMissingBucket(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "")

	_, err := ResolveObjectStorageConfigFromEnv()
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorMissingBucket {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: want missing_bucket, got %v", err)
	}
}

func TestResolveObjectStorageConfigFromEnvMemoryNeedsNoBucket(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "memory")
	t.Setenv("PROJECT_GCS_BUCKET_NAME", "")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeMemory {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeMemory, cfg.Mode)
	}
}

func TestResolvePublicBaseURL(t *testing.T) {
	baseURL, source, err := resolvePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS})
	if err != nil || baseURL != "" || source != "gcs_default" {
		t.Fatalf("gcs default: base=%q source=%q err=%v", baseURL, source, err)
	}

	baseURL, source, err = resolvePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil || baseURL != "http://fake-gcs:4443" || source != "storage_emulator_host" {
		t.Fatalf("emulator fallback: base=%q source=%q err=%v", baseURL, source, err)
	}

	baseURL, source, err = resolvePublicBaseURL(ObjectStorageConfig{
		Mode:          ObjectStorageModeGCSEmulator,
		EmulatorHost:  "http://fake-gcs:4443",
		PublicBaseURL: "http://localhost:4443/",
	})
	if err != nil || baseURL != "http://localhost:4443" || source != "object_storage_public_base_url" {
		t.Fatalf("override: base=%q source=%q err=%v", baseURL, source, err)
	}

	if _, _, err := resolvePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS, PublicBaseURL: "not a url"}); err == nil {
		t.Fatalf("expected error for relative public base url")
	}
}
