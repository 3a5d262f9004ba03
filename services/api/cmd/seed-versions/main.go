// Command seed-versions loads a YAML changelog into the version_updates table.
// Entries are upserted by version tag, so re-running it is safe.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"studyhub/internal/util"
	"studyhub/pkg/domain"
	"studyhub/pkg/store"
)

type changelog struct {
	Versions []domain.VersionUpdate `yaml:"versions"`
}

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "version-updates.yaml", "changelog YAML file")
	dsn := flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.Parse()

	logger := util.InitLogger(os.Getenv("STUDYHUB_LOG_LEVEL"))

	entries, err := readChangelog(*file)
	if err != nil {
		log.Fatalf("failed to read changelog: %v", err)
	}
	if strings.TrimSpace(*dsn) == "" {
		log.Fatalf("database url is required (-database-url or DATABASE_URL)")
	}
	docs, err := store.NewGormStore(*dsn)
	if err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := seed(ctx, docs, entries); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	logger.Info("version updates seeded", "count", len(entries), "file", *file)
}

func readChangelog(path string) ([]domain.VersionUpdate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc changelog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, v := range doc.Versions {
		v.Version = strings.TrimSpace(v.Version)
		if v.Version == "" {
			return nil, fmt.Errorf("entry %d: version is required", i)
		}
		if v.ReleaseDate.IsZero() {
			return nil, fmt.Errorf("entry %s: releaseDate is required", v.Version)
		}
		doc.Versions[i] = v
	}
	return doc.Versions, nil
}

type versionWriter interface {
	SaveVersionUpdate(ctx context.Context, v domain.VersionUpdate) error
}

func seed(ctx context.Context, w versionWriter, entries []domain.VersionUpdate) error {
	for _, v := range entries {
		if err := w.SaveVersionUpdate(ctx, v); err != nil {
			return fmt.Errorf("save %s: %w", v.Version, err)
		}
	}
	return nil
}
