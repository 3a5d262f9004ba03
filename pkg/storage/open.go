package storage

import (
	"fmt"
	"strings"
)

const (
	BackendMinio  = "minio"
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

// Config selects and configures an object store backend.
type Config struct {
	Backend string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AzureConnectionString string
	AzureContainer        string
}

// Open builds the configured backend. Missing credentials are reported before
// any network call is made.
func Open(cfg Config) (ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendAzure:
		return NewAzureStore(cfg.AzureConnectionString, cfg.AzureContainer)
	case BackendMinio, "":
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, fmt.Errorf("minio credentials are required")
		}
		return NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case BackendMemory:
		return NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}
