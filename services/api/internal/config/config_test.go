package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
port: "8080"
logLevel: info
databaseURL: postgres://studyhub@localhost/studyhub
redisAddr: localhost:6379
identityAPIKey: test-key
projectID: studyhub-test
jwksURL: https://keys.example.com/jwks
objectStore:
  backend: minio
  minioEndpoint: localhost:9000
  minioAccessKey: minio
  minioSecretKey: minio123
  minioBucket: notes
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultLimits(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxSubjectsPerUser != 10 || cfg.Limits.MaxNotesPerSubject != 10 {
		t.Fatalf("unexpected default limits: %+v", cfg.Limits)
	}
	if cfg.Limits.MaxFileSizeBytes != 10*1024*1024 {
		t.Fatalf("max file size = %d", cfg.Limits.MaxFileSizeBytes)
	}
	if cfg.Limits.RateLimitWindow != 15*time.Minute {
		t.Fatalf("rate limit window = %v", cfg.Limits.RateLimitWindow)
	}
}

func TestLoadReadsLimitsBlock(t *testing.T) {
	body := baseYAML + `
limits:
  maxSubjectsPerUser: 3
  rateLimitWindow: 1m
  allowedFileExtensions: [".pdf", ".epub"]
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxSubjectsPerUser != 3 || cfg.Limits.RateLimitWindow != time.Minute {
		t.Fatalf("limits block ignored: %+v", cfg.Limits)
	}
	if len(cfg.Limits.AllowedFileExtensions) != 2 {
		t.Fatalf("extensions = %v", cfg.Limits.AllowedFileExtensions)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STUDYHUB_PORT", "9090")
	t.Setenv("STUDYHUB_MAX_NOTES_PER_SUBJECT", "4")
	t.Setenv("STUDYHUB_MAX_FILE_SIZE_BYTES", "1024")
	t.Setenv("STUDYHUB_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("STUDYHUB_OBJECT_STORE", "azure")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("AZURE_STORAGE_CONTAINER", "notes")

	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.Limits.MaxNotesPerSubject != 4 || cfg.Limits.MaxFileSizeBytes != 1024 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.ObjectStore.Storage().Backend != "azure" {
		t.Fatalf("backend = %q", cfg.ObjectStore.Backend)
	}
}

func TestLoadFailsFast(t *testing.T) {
	tests := []struct {
		name   string
		remove string
		want   string
	}{
		{"port", `port: "8080"`, "port is required"},
		{"database", "databaseURL: postgres://studyhub@localhost/studyhub", "databaseURL is required"},
		{"redis", "redisAddr: localhost:6379", "redisAddr is required"},
		{"api key", "identityAPIKey: test-key", "identityAPIKey is required"},
		{"project", "projectID: studyhub-test", "projectID is required"},
		{"jwks", "jwksURL: https://keys.example.com/jwks", "jwksURL is required"},
		{"minio bucket", "  minioBucket: notes", "minio backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := strings.Replace(baseYAML, tc.remove, "", 1)
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	t.Setenv("STUDYHUB_MAX_SUBJECTS_PER_USER", "-1")
	_, err := Load(writeConfig(t, baseYAML))
	if err == nil || !strings.Contains(err.Error(), "maxSubjectsPerUser") {
		t.Fatalf("expected limits error, got %v", err)
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	for _, field := range []string{"downloadURLExpiry", "pendingNoteTTL"} {
		_, err := Load(writeConfig(t, baseYAML+field+": soon\n"))
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: expected duration error, got %v", field, err)
		}
	}
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv("STUDYHUB_CONFIG", "")
	if Path() != ConfigPath {
		t.Fatalf("default path = %q", Path())
	}
	t.Setenv("STUDYHUB_CONFIG", "/etc/studyhub/config.yaml")
	if Path() != "/etc/studyhub/config.yaml" {
		t.Fatalf("path = %q", Path())
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
