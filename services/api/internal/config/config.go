package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"studyhub/pkg/limits"
	"studyhub/pkg/storage"
)

// ConfigPath is the default config file. STUDYHUB_CONFIG overrides it.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port"`
	LogLevel          string   `yaml:"logLevel"`
	DatabaseURL       string   `yaml:"databaseURL"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisPassword     string   `yaml:"redisPassword"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`

	IdentityBaseURL string `yaml:"identityBaseURL"`
	IdentityAPIKey  string `yaml:"identityAPIKey"`
	ProjectID       string `yaml:"projectID"`
	JWKSURL         string `yaml:"jwksURL"`
	JWTLeeway       string `yaml:"jwtLeeway"`

	ObjectStore       ObjectStoreConfig `yaml:"objectStore"`
	DownloadURLExpiry string            `yaml:"downloadURLExpiry"`
	CleanupStream     string            `yaml:"cleanupStream"`
	CleanupWorkers    int               `yaml:"cleanupWorkers"`
	PendingNoteTTL    string            `yaml:"pendingNoteTTL"`

	Limits limits.Limits `yaml:"limits"`
}

type ObjectStoreConfig struct {
	Backend               string `yaml:"backend"`
	MinioEndpoint         string `yaml:"minioEndpoint"`
	MinioAccessKey        string `yaml:"minioAccessKey"`
	MinioSecretKey        string `yaml:"minioSecretKey"`
	MinioBucket           string `yaml:"minioBucket"`
	MinioUseSSL           bool   `yaml:"minioUseSSL"`
	AzureConnectionString string `yaml:"azureConnectionString"`
	AzureContainer        string `yaml:"azureContainer"`
}

// Storage converts the section into the object store factory input.
func (o ObjectStoreConfig) Storage() storage.Config {
	return storage.Config{
		Backend:               o.Backend,
		MinioEndpoint:         o.MinioEndpoint,
		MinioAccessKey:        o.MinioAccessKey,
		MinioSecretKey:        o.MinioSecretKey,
		MinioBucket:           o.MinioBucket,
		MinioUseSSL:           o.MinioUseSSL,
		AzureConnectionString: o.AzureConnectionString,
		AzureContainer:        o.AzureContainer,
	}
}

// Path returns STUDYHUB_CONFIG when set, otherwise ConfigPath.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("STUDYHUB_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to Path()), applies environment
// overrides and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	cfg.Limits = cfg.Limits.WithDefaults()
	if strings.TrimSpace(cfg.ObjectStore.Backend) == "" {
		cfg.ObjectStore.Backend = storage.BackendMinio
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "STUDYHUB_PORT")
	setString(&cfg.LogLevel, "STUDYHUB_LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("STUDYHUB_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("STUDYHUB_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}

	setString(&cfg.IdentityBaseURL, "STUDYHUB_IDENTITY_BASE_URL")
	setString(&cfg.IdentityAPIKey, "STUDYHUB_IDENTITY_API_KEY")
	setString(&cfg.ProjectID, "STUDYHUB_PROJECT_ID")
	setString(&cfg.JWKSURL, "STUDYHUB_JWKS_URL")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")

	setString(&cfg.ObjectStore.Backend, "STUDYHUB_OBJECT_STORE")
	setString(&cfg.ObjectStore.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.ObjectStore.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.ObjectStore.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.ObjectStore.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.ObjectStore.MinioUseSSL = b
		}
	}
	setString(&cfg.ObjectStore.AzureConnectionString, "AZURE_STORAGE_CONNECTION_STRING")
	setString(&cfg.ObjectStore.AzureContainer, "AZURE_STORAGE_CONTAINER")
	setString(&cfg.DownloadURLExpiry, "STUDYHUB_DOWNLOAD_URL_EXPIRY")
	setInt(&cfg.CleanupWorkers, "STUDYHUB_CLEANUP_WORKERS")
	setString(&cfg.PendingNoteTTL, "STUDYHUB_PENDING_NOTE_TTL")

	setInt(&cfg.Limits.MaxSubjectsPerUser, "STUDYHUB_MAX_SUBJECTS_PER_USER")
	setInt(&cfg.Limits.MaxNotesPerSubject, "STUDYHUB_MAX_NOTES_PER_SUBJECT")
	setInt(&cfg.Limits.MaxFlashcardSetsPerSubject, "STUDYHUB_MAX_FLASHCARD_SETS_PER_SUBJECT")
	setInt(&cfg.Limits.MaxFlashcardsPerSet, "STUDYHUB_MAX_FLASHCARDS_PER_SET")
	if v := os.Getenv("STUDYHUB_MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Limits.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("STUDYHUB_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			cfg.Limits.RateLimitWindow = d
		}
	}
	setInt(&cfg.Limits.GeneralRequestsPerWindow, "STUDYHUB_GENERAL_REQUESTS_PER_WINDOW")
	setInt(&cfg.Limits.UploadRequestsPerWindow, "STUDYHUB_UPLOAD_REQUESTS_PER_WINDOW")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or STUDYHUB_PORT)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.IdentityAPIKey) == "" {
		return errors.New("config: identityAPIKey is required (set in config.yaml or STUDYHUB_IDENTITY_API_KEY)")
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return errors.New("config: projectID is required (set in config.yaml or STUDYHUB_PROJECT_ID)")
	}
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return errors.New("config: jwksURL is required (set in config.yaml or STUDYHUB_JWKS_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting and blob cleanup")
	}
	if cfg.CleanupWorkers < 0 {
		return errors.New("config: cleanupWorkers must be >= 0")
	}
	if _, err := ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := ParseDuration("downloadURLExpiry", cfg.DownloadURLExpiry); err != nil {
		return err
	}
	if _, err := ParseDuration("pendingNoteTTL", cfg.PendingNoteTTL); err != nil {
		return err
	}
	if err := validateObjectStore(cfg.ObjectStore); err != nil {
		return err
	}
	if err := cfg.Limits.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func validateObjectStore(o ObjectStoreConfig) error {
	switch strings.ToLower(strings.TrimSpace(o.Backend)) {
	case storage.BackendMinio:
		if o.MinioEndpoint == "" || o.MinioAccessKey == "" || o.MinioSecretKey == "" || o.MinioBucket == "" {
			return errors.New("config: objectStore minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for the minio backend")
		}
	case storage.BackendAzure:
		if o.AzureConnectionString == "" || o.AzureContainer == "" {
			return errors.New("config: objectStore azureConnectionString and azureContainer are required for the azure backend")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("config: unknown objectStore backend %q", o.Backend)
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration field; empty means zero.
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", field, err)
	}
	return dur, nil
}
