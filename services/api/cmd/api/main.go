package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"studyhub/internal/idtoken"
	"studyhub/internal/util"
	"studyhub/pkg/queue"
	"studyhub/pkg/storage"
	"studyhub/pkg/store"
	"studyhub/services/api/internal/app"
	"studyhub/services/api/internal/blobs"
	"studyhub/services/api/internal/config"
	"studyhub/services/api/internal/identity"
	"studyhub/services/api/internal/security"
	"studyhub/services/api/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	// Durations were checked by config.Load.
	leeway, _ := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	downloadExpiry, _ := config.ParseDuration("downloadURLExpiry", cfg.DownloadURLExpiry)
	pendingTTL, _ := config.ParseDuration("pendingNoteTTL", cfg.PendingNoteTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	objects, err := storage.Open(cfg.ObjectStore.Storage())
	if err != nil {
		log.Fatalf("failed to open object store: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	cleanup, err := queue.NewCleanupQueueWithClient(rdb, queue.Config{Stream: cfg.CleanupStream})
	if err != nil {
		log.Fatalf("failed to init cleanup queue: %v", err)
	}
	blobManager, err := blobs.NewManager(objects, cleanup)
	if err != nil {
		log.Fatalf("failed to init blob manager: %v", err)
	}
	workers := cfg.CleanupWorkers
	if workers == 0 {
		workers = 1
	}
	if err := blobManager.RunCleanup(ctx, workers); err != nil {
		log.Fatalf("failed to start blob cleanup: %v", err)
	}

	provider, err := identity.NewRESTProvider(cfg.IdentityBaseURL, cfg.IdentityAPIKey, nil)
	if err != nil {
		log.Fatalf("failed to init identity provider: %v", err)
	}
	verifier, err := idtoken.NewVerifier(idtoken.Config{
		ProjectID: cfg.ProjectID,
		JWKSURL:   cfg.JWKSURL,
		Leeway:    leeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}
	ident, err := identity.NewContext(provider, verifier)
	if err != nil {
		log.Fatalf("failed to init identity context: %v", err)
	}
	if err := ident.Init(ctx); err != nil {
		// Retried on the first authenticated request.
		logger.Warn("identity init deferred", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxy cidrs: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:             docs,
		Identity:          ident,
		Blobs:             blobManager,
		Limits:            cfg.Limits,
		DownloadURLExpiry: downloadExpiry,
		PendingNoteTTL:    pendingTTL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	appCore.RunPendingNoteSweep(ctx, 10*time.Minute)

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Redis:          rdb,
		TrustedProxies: trusted,
		AllowedOrigins: cfg.AllowedOrigins,
		Alerter:        security.NewAuditAlerter(rdb, ""),
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		if err := server.Shutdown(srv, 10*time.Second); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	slog.Info("server listening", "addr", addr, "object_store", cfg.ObjectStore.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
